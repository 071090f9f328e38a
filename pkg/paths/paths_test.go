// pkg/paths/paths_test.go
// TEST TYPE: Unit Test
// PURPOSE: Test host path layout

package paths_test

import (
	"path/filepath"
	"testing"

	"github.com/strata-build/strata/pkg/paths"
	"github.com/stretchr/testify/assert"
)

func TestPathsAreNamespaced(t *testing.T) {
	assert.Equal(t, "strata", filepath.Base(filepath.Dir(paths.StoreDir())))
	assert.Equal(t, "volumes", filepath.Base(paths.StoreDir()))
	assert.Equal(t, "strata.log", filepath.Base(paths.LogFile()))
}
