// Package paths centralizes where strata keeps its state on the host,
// following the XDG base directory spec.
package paths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "strata"

// StoreDir is where sealed volumes and manifests live by default.
func StoreDir() string {
	return filepath.Join(xdg.StateHome, appName, "volumes")
}

// LogFile is the default build log location.
func LogFile() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}
