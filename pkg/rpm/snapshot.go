package rpm

import (
	"sort"

	"github.com/strata-build/strata/pkg/errors"
	"gopkg.in/yaml.v3"
)

// snapshotDoc is the YAML shape of a repo snapshot metadata file.
type snapshotDoc struct {
	Endpoint string        `yaml:"endpoint"`
	Packages []*packageDoc `yaml:"packages"`
}

type packageDoc struct {
	Name    string            `yaml:"name"`
	Version string            `yaml:"version"`
	Dirs    []string          `yaml:"dirs"`
	Files   map[string]string `yaml:"files"`
}

// Snapshot is a Source backed by static repo-snapshot metadata. It stands
// in for the snapshot server at its interface boundary: names in, content
// plus ownership out.
type Snapshot struct {
	endpoint string
	packages map[string]*Package
}

// NewSnapshot builds a snapshot source from already-resolved packages.
func NewSnapshot(endpoint string, pkgs ...*Package) *Snapshot {
	s := &Snapshot{
		endpoint: endpoint,
		packages: make(map[string]*Package, len(pkgs)),
	}
	for _, p := range pkgs {
		s.packages[p.Name] = p
	}
	return s
}

// LoadSnapshot parses repo snapshot metadata from YAML.
func LoadSnapshot(data []byte) (*Snapshot, error) {
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "parsing package snapshot")
	}

	s := &Snapshot{
		endpoint: doc.Endpoint,
		packages: make(map[string]*Package, len(doc.Packages)),
	}
	for _, pd := range doc.Packages {
		if pd.Name == "" {
			return nil, errors.New(errors.ErrConfigParse, "package snapshot entry missing name")
		}
		s.packages[pd.Name] = &Package{
			Name:    pd.Name,
			Version: pd.Version,
			Dirs:    pd.Dirs,
			Files:   pd.Files,
		}
	}
	return s, nil
}

// Resolve implements Source.
func (s *Snapshot) Resolve(name string) (*Package, error) {
	p, ok := s.packages[name]
	if !ok {
		return nil, unknownPackage(name)
	}
	return p, nil
}

// Endpoint implements Source.
func (s *Snapshot) Endpoint() string { return s.endpoint }

// Names returns every package name in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.packages))
	for name := range s.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
