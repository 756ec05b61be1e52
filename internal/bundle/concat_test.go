package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetforge/assetforge/internal/sourcemap"
	"github.com/assetforge/assetforge/internal/types"
)

func scriptRecord(path, content string) *types.FileRecord {
	return &types.FileRecord{Path: path, Type: types.FileTypeScript, Content: content}
}

func TestConcat_ScriptsGetSeparators(t *testing.T) {
	files := []*types.FileRecord{
		scriptRecord("a.js", "var a=1"),
		scriptRecord("b.js", "var b=2"),
	}

	data, m, err := Concat(files, types.FileTypeScript, ConcatOptions{OutputPath: "app.js", WithMap: true})
	require.NoError(t, err)
	assert.Equal(t, "var a=1;\nvar b=2;\n", data)

	consumer, err := m.Consumer()
	require.NoError(t, err)

	source, _, line, _, ok := consumer.Source(1, 0)
	require.True(t, ok)
	assert.Equal(t, "a.js", source)
	assert.Equal(t, 1, line)

	source, _, line, _, ok = consumer.Source(2, 0)
	require.True(t, ok)
	assert.Equal(t, "b.js", source)
	assert.Equal(t, 1, line)
}

func TestConcat_ExistingSeparatorNotDoubled(t *testing.T) {
	files := []*types.FileRecord{scriptRecord("a.js", "var a=1;\n")}

	data, _, err := Concat(files, types.FileTypeScript, ConcatOptions{OutputPath: "app.js"})
	require.NoError(t, err)
	assert.Equal(t, "var a=1;\n", data)
}

func TestConcat_StylesheetsAppendedVerbatim(t *testing.T) {
	files := []*types.FileRecord{
		{Path: "a.css", Type: types.FileTypeStylesheet, Content: "body { color: red }"},
		{Path: "b.css", Type: types.FileTypeStylesheet, Content: "p { margin: 0 }"},
	}

	data, m, err := Concat(files, types.FileTypeStylesheet, ConcatOptions{OutputPath: "app.css", WithMap: true})
	require.NoError(t, err)
	assert.Equal(t, "body { color: red }\np { margin: 0 }\n", data)
	require.NotNil(t, m)
	assert.Equal(t, []string{"a.css", "b.css"}, m.Sources)
}

func TestConcat_NoMapWhenDisabled(t *testing.T) {
	files := []*types.FileRecord{scriptRecord("a.js", "var a=1")}

	_, m, err := Concat(files, types.FileTypeScript, ConcatOptions{OutputPath: "app.js"})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestConcat_ModuleWrappingAndDefinition(t *testing.T) {
	files := []*types.FileRecord{
		{Path: "app/mod.js", Type: types.FileTypeScript, IsModule: true, Content: "module.exports = 1"},
		scriptRecord("app/plain.js", "var p=1"),
	}

	data, _, err := Concat(files, types.FileTypeScript, ConcatOptions{
		OutputPath: "app.js",
		Wrapper:    CommonJSWrapper,
		Definition: CommonJSDefinition(),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(data, "(function() {"), "definition preamble comes first")
	assert.Contains(t, data, `require.register("app/mod", function(exports, require, module) {`)
	assert.Contains(t, data, "module.exports = 1;")
	assert.Contains(t, data, "var p=1;")
	assert.NotContains(t, data, `require.register("app/plain"`, "non-module files stay unwrapped")
}

func TestConcat_NoDefinitionWithoutModules(t *testing.T) {
	files := []*types.FileRecord{scriptRecord("a.js", "var a=1")}

	data, _, err := Concat(files, types.FileTypeScript, ConcatOptions{
		OutputPath: "app.js",
		Wrapper:    CommonJSWrapper,
		Definition: CommonJSDefinition(),
	})
	require.NoError(t, err)
	assert.Equal(t, "var a=1;\n", data)
}

func TestConcat_ModuleDetectionPredicate(t *testing.T) {
	files := []*types.FileRecord{
		scriptRecord("node_modules/pkg/index.js", "module.exports = 1"),
	}

	data, _, err := Concat(files, types.FileTypeScript, ConcatOptions{
		OutputPath: "app.js",
		Wrapper:    CommonJSWrapper,
		IsModule:   func(p string) bool { return strings.HasPrefix(p, "node_modules/") },
	})
	require.NoError(t, err)
	assert.Contains(t, data, `require.register("node_modules/pkg/index"`)
}

func TestConcat_AutoRequireTrailing(t *testing.T) {
	files := []*types.FileRecord{scriptRecord("app/init.js", "var i=1")}

	data, _, err := Concat(files, types.FileTypeScript, ConcatOptions{
		OutputPath:  "app.js",
		AutoRequire: []string{"app/init"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(data, "require(\"app/init\");\n"))
}

func TestConcat_WrappedModuleMapSkipsPrefixLine(t *testing.T) {
	files := []*types.FileRecord{
		{Path: "app/mod.js", Type: types.FileTypeScript, IsModule: true, Content: "var m=1"},
	}

	data, m, err := Concat(files, types.FileTypeScript, ConcatOptions{
		OutputPath: "app.js",
		Wrapper:    CommonJSWrapper,
		WithMap:    true,
	})
	require.NoError(t, err)

	// Line 1 is the wrapper prefix, line 2 the module body.
	lines := strings.Split(data, "\n")
	require.True(t, len(lines) >= 2)
	assert.Contains(t, lines[0], "require.register(")
	assert.Equal(t, "var m=1;", lines[1])

	consumer, err := m.Consumer()
	require.NoError(t, err)

	source, _, line, _, ok := consumer.Source(2, 0)
	require.True(t, ok)
	assert.Equal(t, "app/mod.js", source)
	assert.Equal(t, 1, line)
}

func TestConcat_FragmentWithOwnMapResolvesToOriginal(t *testing.T) {
	// a.js was itself generated from orig.src; its fragment map must be
	// carried through so the bundle map reaches the true original.
	inner := sourcemap.NewBuilder("a.js")
	inner.AddSegment(0, 0, "orig.src", 4, 0)
	inner.SetContent("orig.src", "line1\nline2\nline3\nline4\nvar a=1")

	files := []*types.FileRecord{
		{
			Path:    "a.js",
			Type:    types.FileTypeScript,
			Content: "var a=1",
			SourceNode: &sourcemap.SourceNode{
				Source:  "a.js",
				Content: "var a=1",
				Map:     inner.Build(),
			},
		},
	}

	_, m, err := Concat(files, types.FileTypeScript, ConcatOptions{OutputPath: "app.js", WithMap: true})
	require.NoError(t, err)

	consumer, err := m.Consumer()
	require.NoError(t, err)

	source, _, line, _, ok := consumer.Source(1, 0)
	require.True(t, ok)
	assert.Equal(t, "orig.src", source)
	assert.Equal(t, 5, line)
	assert.Contains(t, m.ContentFor("orig.src"), "var a=1")
}
