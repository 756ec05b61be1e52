package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadClean(t *testing.T, set func()) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	if set != nil {
		set()
	}
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadClean(t, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "vendor"}, cfg.Paths.Watched)
	assert.Equal(t, "public", cfg.Paths.Public)
	assert.Equal(t, []string{"node_modules", ".git"}, cfg.Paths.Ignore)
	assert.Equal(t, SourceMapsOn, cfg.SourceMaps)
	assert.Equal(t, "commonjs", cfg.Modules.Wrapper)
	assert.Equal(t, "node_modules", cfg.NPM.Directory)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Optimize)
}

func TestLoad_ExplicitValuesOverrideDefaults(t *testing.T) {
	cfg, err := loadClean(t, func() {
		viper.Set("paths.public", "dist")
		viper.Set("source_maps", SourceMapsInline)
		viper.Set("optimize", true)
		viper.Set("workers.count", 2)
	})
	require.NoError(t, err)

	assert.Equal(t, "dist", cfg.Paths.Public)
	assert.Equal(t, SourceMapsInline, cfg.SourceMaps)
	assert.True(t, cfg.Optimize)
	assert.Equal(t, 2, cfg.Workers.Count)
}

func TestLoad_InvalidSourceMapMode(t *testing.T) {
	_, err := loadClean(t, func() {
		viper.Set("source_maps", "sometimes")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_maps")
}

func TestLoad_InvalidWrapper(t *testing.T) {
	_, err := loadClean(t, func() {
		viper.Set("modules.wrapper", "amd")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrapper")
}

func TestValidate_WorkerCount(t *testing.T) {
	cfg := &Config{
		SourceMaps: SourceMapsOff,
		Modules:    ModulesConfig{Wrapper: "none"},
		Workers:    WorkersConfig{Count: -1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers.count")
}

func TestValidate_AllSourceMapModes(t *testing.T) {
	for _, mode := range []string{SourceMapsOff, SourceMapsOn, SourceMapsInline, SourceMapsAbsoluteURL} {
		cfg := &Config{
			SourceMaps: mode,
			Modules:    ModulesConfig{Wrapper: "commonjs"},
			Workers:    WorkersConfig{Count: 1},
		}
		assert.NoError(t, cfg.Validate(), "mode %s", mode)
	}
}

func TestTypeConfig_IsZero(t *testing.T) {
	assert.True(t, TypeConfig{}.IsZero())
	assert.False(t, TypeConfig{JoinTo: "js/app.js"}.IsZero())
	assert.False(t, TypeConfig{Entries: map[string]any{"app/a.js": "js/a.js"}}.IsZero())
}
