package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetforge/assetforge/internal/config"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/optimize"
	"github.com/assetforge/assetforge/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Paths:      config.PathsConfig{Public: t.TempDir()},
		SourceMaps: config.SourceMapsOn,
		Modules:    config.ModulesConfig{Wrapper: "none"},
	}
}

func readOutput(t *testing.T, cfg *config.Config, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Paths.Public, path))
	require.NoError(t, err)
	return string(data)
}

func TestGenerate_WritesBundleAndMap(t *testing.T) {
	cfg := testConfig(t)
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
		scriptRecord("app/b.js", "var b=2"),
	})

	require.Len(t, cycle.Targets, 1)
	result := cycle.Targets[0]
	require.NoError(t, result.Err)
	assert.Equal(t, "js/app.js", result.Path)
	assert.Equal(t, 2, result.Files)

	out := readOutput(t, cfg, "js/app.js")
	assert.Contains(t, out, "var a=1;\nvar b=2;\n")
	assert.Contains(t, out, "//# sourceMappingURL=app.js.map")

	mapData := readOutput(t, cfg, "js/app.js.map")
	assert.Contains(t, mapData, `"version":3`)
	assert.Contains(t, mapData, "app/a.js")
}

func TestGenerate_InlineMapEmbedsDataURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourceMaps = config.SourceMapsInline
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)

	out := readOutput(t, cfg, "js/app.js")
	assert.Contains(t, out, "//# sourceMappingURL=data:application/json;charset=utf-8;base64,")

	_, err := os.Stat(filepath.Join(cfg.Paths.Public, "js/app.js.map"))
	assert.True(t, os.IsNotExist(err), "inline mode writes no sibling map file")
}

func TestGenerate_MapsOffWritesNoReference(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourceMaps = config.SourceMapsOff
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)
	assert.NotContains(t, readOutput(t, cfg, "js/app.js"), "sourceMappingURL")
}

func TestGenerate_StylesheetMapComment(t *testing.T) {
	cfg := testConfig(t)
	jm := resolveTestJoins(t, &config.FilesConfig{
		Stylesheets: config.TypeConfig{JoinTo: "css/app.css"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		{Path: "app/a.css", Type: types.FileTypeStylesheet, Content: "body{}"},
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)
	assert.Contains(t, readOutput(t, cfg, "css/app.css"), "/*# sourceMappingURL=app.css.map */")
}

func TestGenerate_EmptyTargetsProduceNoOutput(t *testing.T) {
	cfg := testConfig(t)
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: map[string]any{
			"js/app.js":   "app/**/*.js",
			"js/admin.js": "admin/**/*.js",
		}},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
	})

	require.Len(t, cycle.Targets, 1)
	assert.Equal(t, "js/app.js", cycle.Targets[0].Path)

	_, err := os.Stat(filepath.Join(cfg.Paths.Public, "js/admin.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerate_OrderingAppliedPerTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Files.Scripts.Order = config.OrderConfig{Before: []string{"app/b.js"}}
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
		scriptRecord("app/b.js", "var b=2"),
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)
	out := readOutput(t, cfg, "js/app.js")
	assert.Less(t, strings.Index(out, "var b=2"), strings.Index(out, "var a=1"))
}

// failingOptimizer always errors, exercising per-target failure isolation.
type failingOptimizer struct{ typ types.FileType }

func (f *failingOptimizer) Name() string         { return "boom" }
func (f *failingOptimizer) Type() types.FileType { return f.typ }
func (f *failingOptimizer) Optimize(ctx context.Context, bundle *types.PipelineResult) (*optimize.Result, error) {
	return nil, errors.New("transform exploded")
}

func TestGenerate_OptimizerFailureIsolatedPerTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimize = true
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts:     config.TypeConfig{JoinTo: "js/app.js"},
		Stylesheets: config.TypeConfig{JoinTo: "css/app.css"},
	}, nil)

	gen := NewGenerator(cfg, jm, []optimize.Optimizer{&failingOptimizer{typ: types.FileTypeScript}}, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
		{Path: "app/a.css", Type: types.FileTypeStylesheet, Content: "body{}"},
	})

	require.Len(t, cycle.Targets, 2)
	failed := cycle.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "js/app.js", failed[0].Path)
	assert.Contains(t, failed[0].Err.Error(), "boom")

	// The stylesheet target still wrote its output.
	assert.Contains(t, readOutput(t, cfg, "css/app.css"), "body{}")
	_, err := os.Stat(filepath.Join(cfg.Paths.Public, "js/app.js"))
	assert.True(t, os.IsNotExist(err), "failed target writes nothing")
}

func TestGenerate_OptimizerOverrideReplacesChain(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimize = true
	cfg.SourceMaps = config.SourceMapsOff
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	// Even a chain that would fail is bypassed once an override is set.
	gen := NewGenerator(cfg, jm, []optimize.Optimizer{&failingOptimizer{typ: types.FileTypeScript}}, logging.Nop())
	gen.SetOptimizer(func(ctx context.Context, bundle *types.PipelineResult) (*types.PipelineResult, error) {
		bundle.Data = "/* optimized elsewhere */\n" + bundle.Data
		return bundle, nil
	})

	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)
	assert.True(t, strings.HasPrefix(readOutput(t, cfg, "js/app.js"), "/* optimized elsewhere */"))
}

func TestGenerate_ModuleWrappingFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = config.ModulesConfig{Wrapper: "commonjs", Definition: true, AutoRequire: []string{"app/init.js"}}
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		{Path: "app/init.js", Type: types.FileTypeScript, IsModule: true, Content: "module.exports = 1"},
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)

	out := readOutput(t, cfg, "js/app.js")
	assert.Contains(t, out, "require.register(\"app/init\"")
	assert.Contains(t, out, "require(\"app/init\");")
}

func TestGenerate_VendorPackagesOrderedAndWrapped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = config.ModulesConfig{Wrapper: "commonjs"}
	cfg.NPM = config.NPMConfig{Enabled: true, Directory: "node_modules", PackageOrder: []string{"zepto", "underscore"}}
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("node_modules/underscore/index.js", "var u=1"),
		scriptRecord("node_modules/zepto/index.js", "var z=1"),
		scriptRecord("app/a.js", "var a=1"),
	})

	require.Len(t, cycle.Targets, 1)
	require.NoError(t, cycle.Targets[0].Err)

	out := readOutput(t, cfg, "js/app.js")
	z := strings.Index(out, "var z=1")
	u := strings.Index(out, "var u=1")
	a := strings.Index(out, "var a=1")
	assert.Less(t, z, u, "package order lists zepto before underscore")
	assert.Less(t, u, a, "vendor files precede application files")
	assert.Contains(t, out, "require.register(\"node_modules/zepto/index\"",
		"package files are wrapped as modules")
}

func TestGenerate_NoDuplicateOutputAcrossTypes(t *testing.T) {
	// A script default join with no stylesheet config used to resolve into
	// two targets writing the same output file concurrently. The cycle must
	// produce exactly one writer per output path.
	cfg := testConfig(t)
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	cycle := gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
		{Path: "app/a.css", Type: types.FileTypeStylesheet, Content: "body{}"},
	})

	require.Len(t, cycle.Targets, 1)
	assert.Equal(t, "app.js", cycle.Targets[0].Path)
	assert.Equal(t, types.FileTypeScript, cycle.Targets[0].Type)

	out := readOutput(t, cfg, "app.js")
	assert.Contains(t, out, "var a=1;")
	assert.NotContains(t, out, "body{}")
}

func TestGenerate_MetricsRecordOutcomes(t *testing.T) {
	cfg := testConfig(t)
	jm := resolveTestJoins(t, &config.FilesConfig{
		Scripts: config.TypeConfig{JoinTo: "js/app.js"},
	}, nil)

	gen := NewGenerator(cfg, jm, nil, logging.Nop())
	gen.Generate(context.Background(), []*types.FileRecord{
		scriptRecord("app/a.js", "var a=1"),
	})

	snap := gen.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalTargets)
	assert.Equal(t, int64(1), snap.Succeeded)
	assert.Equal(t, int64(0), snap.Failed)
}
