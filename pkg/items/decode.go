package items

import (
	"io/fs"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/registry"
	"github.com/strata-build/strata/pkg/rpm"
	"github.com/strata-build/strata/pkg/volume"
	"gopkg.in/yaml.v3"
)

// DecodeDeps carries the collaborators item decoding needs: the package
// source for resolving rpm actions and the layer store for resolving
// clone sources.
type DecodeDeps struct {
	Packages rpm.Source
	Layers   LayerResolver
}

// LayerResolver opens sealed layers by identity. *volume.Store satisfies it.
type LayerResolver interface {
	Open(id string) (*volume.Immutable, error)
}

// Decoder turns one YAML item node into an Item.
type Decoder func(node *yaml.Node, deps DecodeDeps) (Item, error)

// decoders is the closed dispatch table over item kinds. PhasesProvide is
// deliberately absent: it can only be injected by the compiler.
var decoders = registry.New[Decoder]()

func init() {
	registry.MustRegister(decoders, "install_file", decodeInstallFile)
	registry.MustRegister(decoders, "make_dirs", decodeMakeDirs)
	registry.MustRegister(decoders, "symlink", decodeSymlink)
	registry.MustRegister(decoders, "remove_path", decodeRemovePath)
	registry.MustRegister(decoders, "mount", decodeMount)
	registry.MustRegister(decoders, "tarball", decodeTarball)
	registry.MustRegister(decoders, "clone", decodeClone)
	registry.MustRegister(decoders, "rpm_action", decodeRpmAction)
	registry.MustRegister(decoders, "foreign_layer", decodeForeignLayer)
}

// Kinds returns the declarable item kinds, sorted.
func Kinds() []string { return decoders.List() }

// LayerDoc is the declarative input for one layer build: the interface
// boundary to the build-file front end.
type LayerDoc struct {
	Target         string      `yaml:"target"`
	Parent         string      `yaml:"parent"`
	BuildAppliance string      `yaml:"build_appliance"`
	Items          []yaml.Node `yaml:"items"`
}

// Layer is a decoded layer document.
type Layer struct {
	Target         string
	Parent         string
	BuildAppliance string
	Items          []Item
}

// DecodeLayer parses a layer document and decodes every declared item
// through the dispatch table, preserving declaration order.
func DecodeLayer(data []byte, deps DecodeDeps) (*Layer, error) {
	var doc LayerDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrLayerParse, "parsing layer document")
	}
	if doc.Target == "" {
		return nil, errors.New(errors.ErrLayerParse, "layer document missing target")
	}

	layer := &Layer{
		Target:         doc.Target,
		Parent:         doc.Parent,
		BuildAppliance: doc.BuildAppliance,
	}

	for idx := range doc.Items {
		node := &doc.Items[idx]
		var head struct {
			Kind string `yaml:"kind"`
		}
		if err := node.Decode(&head); err != nil {
			return nil, errors.Wrapf(err, errors.ErrItemDecode, "item %d has no kind", idx)
		}
		dec, err := decoders.Get(head.Kind)
		if err != nil {
			return nil, errors.Newf(errors.ErrItemDecode,
				"item %d declares unknown kind %q", idx, head.Kind)
		}
		item, err := dec(node, deps)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrItemDecode,
				"decoding item %d (%s)", idx, head.Kind)
		}
		layer.Items = append(layer.Items, item)
	}

	return layer, nil
}

func decodeInstallFile(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Dest    string `yaml:"dest"`
		Source  string `yaml:"source"`
		Content string `yaml:"content"`
		Mode    uint32 `yaml:"mode"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Dest == "" {
		return nil, errors.New(errors.ErrItemInvalid, "install_file requires dest")
	}
	if spec.Source != "" && spec.Content != "" {
		return nil, errors.New(errors.ErrItemInvalid, "install_file source and content are mutually exclusive")
	}
	item := &InstallFile{Dest: spec.Dest, Source: spec.Source, Mode: fs.FileMode(spec.Mode)}
	if spec.Content != "" {
		item.Content = []byte(spec.Content)
	}
	return item, nil
}

func decodeMakeDirs(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Into  string `yaml:"into"`
		Make  string `yaml:"make"`
		Mode  uint32 `yaml:"mode"`
		Owner string `yaml:"owner"`
		Group string `yaml:"group"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Make == "" {
		return nil, errors.New(errors.ErrItemInvalid, "make_dirs requires make")
	}
	if spec.Into == "" {
		spec.Into = "/"
	}
	item := &MakeDirs{
		Into:  spec.Into,
		Make:  spec.Make,
		Mode:  fs.FileMode(spec.Mode),
		Owner: spec.Owner,
		Group: spec.Group,
	}
	if _, _, err := item.ownership(); err != nil {
		return nil, err
	}
	return item, nil
}

func decodeSymlink(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Link   string `yaml:"link"`
		Target string `yaml:"target"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Link == "" || spec.Target == "" {
		return nil, errors.New(errors.ErrItemInvalid, "symlink requires link and target")
	}
	return &Symlink{Link: spec.Link, Target: spec.Target}, nil
}

func decodeRemovePath(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Path          string `yaml:"path"`
		IgnoreMissing bool   `yaml:"ignore_missing"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Path == "" {
		return nil, errors.New(errors.ErrItemInvalid, "remove_path requires path")
	}
	return &RemovePath{Path: spec.Path, IgnoreMissing: spec.IgnoreMissing}, nil
}

func decodeMount(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Point    string `yaml:"point"`
		Source   string `yaml:"source"`
		ReadOnly bool   `yaml:"read_only"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Point == "" || spec.Source == "" {
		return nil, errors.New(errors.ErrItemInvalid, "mount requires point and source")
	}
	return &Mount{Point: spec.Point, Source: spec.Source, ReadOnly: spec.ReadOnly}, nil
}

func decodeTarball(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Into   string   `yaml:"into"`
		Source string   `yaml:"source"`
		Files  []string `yaml:"files"`
		Dirs   []string `yaml:"dirs"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Source == "" {
		return nil, errors.New(errors.ErrItemInvalid, "tarball requires source")
	}
	if spec.Into == "" {
		spec.Into = "/"
	}
	return &Tarball{Into: spec.Into, Source: spec.Source, Files: spec.Files, Dirs: spec.Dirs}, nil
}

func decodeClone(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		FromLayer  string `yaml:"from_layer"`
		SourcePath string `yaml:"source_path"`
		Dest       string `yaml:"dest"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if spec.FromLayer == "" || spec.Dest == "" {
		return nil, errors.New(errors.ErrItemInvalid, "clone requires from_layer and dest")
	}
	if spec.SourcePath == "" {
		spec.SourcePath = "/"
	}
	if deps.Layers == nil {
		return nil, errors.New(errors.ErrItemInvalid, "clone requires a layer resolver")
	}
	from, err := deps.Layers.Open(spec.FromLayer)
	if err != nil {
		return nil, err
	}
	return &Clone{From: from, SourcePath: spec.SourcePath, Dest: spec.Dest}, nil
}

func decodeRpmAction(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Action   string   `yaml:"action"`
		Packages []string `yaml:"packages"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if len(spec.Packages) == 0 {
		return nil, errors.New(errors.ErrItemInvalid, "rpm_action requires packages")
	}
	if deps.Packages == nil {
		return nil, errors.New(errors.ErrItemInvalid, "rpm_action requires a package source")
	}
	var op rpm.Op
	switch spec.Action {
	case "install", "":
		op = rpm.OpInstall
	case "remove":
		op = rpm.OpRemove
	default:
		return nil, errors.Newf(errors.ErrItemInvalid, "unknown rpm action %q", spec.Action)
	}
	return NewRpmAction(deps.Packages, op, spec.Packages...)
}

func decodeForeignLayer(node *yaml.Node, deps DecodeDeps) (Item, error) {
	var spec struct {
		Name string            `yaml:"name"`
		Cmd  []string          `yaml:"cmd"`
		Env  map[string]string `yaml:"env"`
	}
	if err := node.Decode(&spec); err != nil {
		return nil, err
	}
	if len(spec.Cmd) == 0 {
		return nil, errors.New(errors.ErrItemInvalid, "foreign_layer requires cmd")
	}
	if spec.Name == "" {
		spec.Name = spec.Cmd[0]
	}
	return &ForeignLayer{Name: spec.Name, Cmd: spec.Cmd, Env: spec.Env}, nil
}
