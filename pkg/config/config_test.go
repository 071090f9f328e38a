// pkg/config/config_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: temp dirs for project config files
// PURPOSE: Test configuration layering and validation

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strata-build/strata/pkg/config"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Store.Dir)
	assert.False(t, cfg.Build.KeepOnFailure)
	assert.Equal(t, "15m", cfg.Sandbox.Timeout)

	d, err := cfg.Sandbox.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)
}

func TestProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	doc := `
[store]
dir = "/srv/strata"

[build]
appliance = "centos9"
keep_on_failure = true

[sandbox]
timeout = "1h"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strata.toml"), []byte(doc), 0644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/strata", cfg.Store.Dir)
	assert.Equal(t, "centos9", cfg.Build.Appliance)
	assert.True(t, cfg.Build.KeepOnFailure)
	assert.Equal(t, "1h", cfg.Sandbox.Timeout)
}

func TestHiddenConfigPreferred(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".strata.toml"),
		[]byte("[build]\nappliance = \"hidden\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strata.toml"),
		[]byte("[build]\nappliance = \"plain\"\n"), 0644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "hidden", cfg.Build.Appliance)
}

func TestInvalidTimeout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strata.toml"),
		[]byte("[sandbox]\ntimeout = \"soon\"\n"), 0644))

	_, err := config.Load(dir)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse))
}

func TestMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strata.toml"),
		[]byte("not toml ["), 0644))

	_, err := config.Load(dir)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
}

func TestDefaultsContentIsEmbedded(t *testing.T) {
	assert.Contains(t, config.DefaultsContent(), "[sandbox]")
}
