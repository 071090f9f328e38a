package items

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
)

// DefaultFileMode is the mode installed files get when none is declared.
// Installed artifacts are read-only inside the image.
const DefaultFileMode fs.FileMode = 0444

// InstallFile places one file into the image, either from a host source
// path or from inline content.
type InstallFile struct {
	// Dest is the image-absolute destination path.
	Dest string

	// Source is the host path content is read from. Mutually exclusive
	// with Content.
	Source string

	// Content is inline file content.
	Content []byte

	// Mode is the destination mode; zero means DefaultFileMode.
	Mode fs.FileMode
}

func (i *InstallFile) Kind() string { return "install_file" }

func (i *InstallFile) ID() string {
	return fmt.Sprintf("install_file:%s", predicates.Normalize(i.Dest))
}

func (i *InstallFile) Phase() Phase { return PhaseGeneric }

func (i *InstallFile) Requires() []predicates.Predicate {
	return []predicates.Predicate{predicates.ParentDirectory(i.Dest)}
}

func (i *InstallFile) Provides() []predicates.Predicate {
	return []predicates.Predicate{predicates.File(i.Dest)}
}

func (i *InstallFile) Apply(ctx context.Context, env *ApplyEnv) error {
	dest := predicates.Normalize(i.Dest)

	if env.Volume.Exists(dest) {
		return errors.Newf(errors.ErrDestinationConflict, "destination %s already exists", dest)
	}

	data := i.Content
	if i.Source != "" {
		var err error
		data, err = env.Host.ReadFile(i.Source)
		if err != nil {
			return errors.Wrapf(err, errors.ErrSourceMissing, "source %s unavailable", i.Source)
		}
	}

	mode := i.Mode
	if mode == 0 {
		mode = DefaultFileMode
	}

	return env.Volume.WriteFile(dest, data, mode)
}
