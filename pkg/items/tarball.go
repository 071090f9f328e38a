package items

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
)

// Tarball extracts a host-side archive into an image directory. The paths
// the archive provides are declared as metadata up front — the archive is
// never scanned at graph-build time — and a mismatch between declaration
// and actual contents is a post-extraction validation failure, not a
// scheduling error.
type Tarball struct {
	// Into is the image-absolute extraction directory.
	Into string

	// Source is the host path of the archive (.tar, .tar.gz, .tgz).
	Source string

	// Files and Dirs declare the archive contents, relative to Into.
	Files []string
	Dirs  []string
}

func (t *Tarball) Kind() string { return "tarball" }

func (t *Tarball) ID() string {
	return fmt.Sprintf("tarball:%s", predicates.Normalize(t.Into))
}

func (t *Tarball) Phase() Phase { return PhaseGeneric }

func (t *Tarball) Requires() []predicates.Predicate {
	return []predicates.Predicate{predicates.Directory(t.Into)}
}

func (t *Tarball) Provides() []predicates.Predicate {
	into := predicates.Normalize(t.Into)
	out := make([]predicates.Predicate, 0, len(t.Dirs)+len(t.Files))
	for _, d := range t.Dirs {
		out = append(out, predicates.Directory(path.Join(into, d)))
	}
	for _, f := range t.Files {
		out = append(out, predicates.File(path.Join(into, f)))
	}
	return out
}

func (t *Tarball) Apply(ctx context.Context, env *ApplyEnv) error {
	into := predicates.Normalize(t.Into)

	data, err := env.Host.ReadFile(t.Source)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSourceMissing, "archive %s unavailable", t.Source)
	}

	var reader io.Reader = bytes.NewReader(data)
	if strings.HasSuffix(t.Source, ".gz") || strings.HasSuffix(t.Source, ".tgz") {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return errors.Wrapf(err, errors.ErrItemApply, "decompressing %s", t.Source)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, errors.ErrItemApply, "reading archive %s", t.Source)
		}

		name := path.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return errors.Newf(errors.ErrItemApply,
				"archive entry %q escapes extraction root", hdr.Name)
		}
		dest := path.Join(into, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := env.Volume.MkdirAll(dest, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				return errors.Wrapf(err, errors.ErrItemApply, "reading entry %s", hdr.Name)
			}
			if err := env.Volume.MkdirAll(path.Dir(dest), DefaultDirMode); err != nil {
				return err
			}
			if err := env.Volume.WriteFile(dest, content, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := env.Volume.Symlink(hdr.Linkname, dest); err != nil {
				return err
			}
		default:
			return errors.Newf(errors.ErrItemApply,
				"unsupported archive entry type %c for %s", hdr.Typeflag, hdr.Name)
		}
	}

	return t.validateDeclared(env)
}

// validateDeclared checks the declared metadata against what extraction
// actually produced.
func (t *Tarball) validateDeclared(env *ApplyEnv) error {
	into := predicates.Normalize(t.Into)
	for _, d := range t.Dirs {
		p := path.Join(into, d)
		info, err := env.Volume.Lstat(p)
		if err != nil || !info.IsDir() {
			return errors.Newf(errors.ErrTarballMismatch,
				"declared directory %s not produced by %s", p, t.Source)
		}
	}
	for _, f := range t.Files {
		p := path.Join(into, f)
		if !env.Volume.Exists(p) {
			return errors.Newf(errors.ErrTarballMismatch,
				"declared file %s not produced by %s", p, t.Source)
		}
	}
	return nil
}
