package volume

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	blake2b "github.com/minio/blake2b-simd"
)

// TreeHash computes a stable content identity for a sealed volume: a
// blake2b digest over every entry, visited in sorted order, covering the
// image path, entry type, permission bits, and file content or symlink
// target. Two builds from the same parent and item set hash identically.
func TreeHash(v *Immutable) (string, error) {
	h := blake2b.New256()
	if err := hashDir(v.fs, v.dir, "/", h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func hashDir(f FS, hostDir, imageDir string, h hashWriter) error {
	entries, err := f.ReadDir(hostDir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		hostPath := filepath.Join(hostDir, entry.Name())
		imagePath := imageDir + entry.Name()
		info, err := f.Lstat(hostPath)
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := f.Readlink(hostPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "l %s -> %s\x00", imagePath, target)
		case info.IsDir():
			fmt.Fprintf(h, "d %s %o\x00", imagePath, info.Mode().Perm())
			if err := hashDir(f, hostPath, imagePath+"/", h); err != nil {
				return err
			}
		default:
			data, err := f.ReadFile(hostPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "f %s %o %d\x00", imagePath, info.Mode().Perm(), len(data))
			if _, err := h.Write(data); err != nil {
				return err
			}
		}
	}
	return nil
}

// TreeSize returns the total byte size of regular files in the volume.
func TreeSize(v *Immutable) (int64, error) {
	return dirSize(v.fs, v.dir)
}

func dirSize(f FS, dir string) (int64, error) {
	entries, err := f.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		info, err := f.Lstat(p)
		if err != nil {
			return 0, err
		}
		if info.IsDir() {
			sub, err := dirSize(f, p)
			if err != nil {
				return 0, err
			}
			total += sub
		} else if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}
