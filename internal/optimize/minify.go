package optimize

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/assetforge/assetforge/internal/sourcemap"
	"github.com/assetforge/assetforge/internal/types"
)

// Minifier is the built-in esbuild-backed optimizer for script and
// stylesheet bundles. It emits an external source map for each transform
// so the chain runner can compose it with the concatenation map.
type Minifier struct {
	name   string
	typ    types.FileType
	loader api.Loader
}

// NewScriptMinifier creates the built-in script minifier.
func NewScriptMinifier() *Minifier {
	return &Minifier{name: "esbuild-js", typ: types.FileTypeScript, loader: api.LoaderJS}
}

// NewStylesheetMinifier creates the built-in stylesheet minifier.
func NewStylesheetMinifier() *Minifier {
	return &Minifier{name: "esbuild-css", typ: types.FileTypeStylesheet, loader: api.LoaderCSS}
}

// Name implements Optimizer.
func (m *Minifier) Name() string { return m.name }

// Type implements Optimizer.
func (m *Minifier) Type() types.FileType { return m.typ }

// Optimize minifies the bundle through esbuild's transform API.
func (m *Minifier) Optimize(ctx context.Context, bundle *types.PipelineResult) (*Result, error) {
	opts := api.TransformOptions{
		Loader:            m.loader,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: m.loader == api.LoaderJS,
		Sourcefile:        bundle.Path,
	}
	if bundle.Map != nil {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(bundle.Data, opts)
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("minify: %s", formatMessages(result.Errors))
	}

	out := &Result{Data: string(result.Code)}
	if len(result.Map) > 0 {
		parsed, err := sourcemap.Parse(result.Map)
		if err != nil {
			return nil, fmt.Errorf("minify produced invalid map: %w", err)
		}
		out.Map = parsed
	}
	return out, nil
}

func formatMessages(messages []api.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Location != nil {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		parts = append(parts, msg.Text)
	}
	return strings.Join(parts, "; ")
}
