// Package optimize runs pluggable transform stages over concatenated
// bundles. Optimizers implement a fixed capability interface; the chain
// runner depends only on that interface, never on concrete plugin identity.
package optimize

import (
	"context"

	"github.com/assetforge/assetforge/internal/errors"
	"github.com/assetforge/assetforge/internal/sourcemap"
	"github.com/assetforge/assetforge/internal/types"
)

// Optimizer is the capability contract a transform plugin declares: a
// content-type affinity, a human-readable name for error attribution, and
// the transform itself.
type Optimizer interface {
	// Name identifies the optimizer in error messages.
	Name() string
	// Type is the content type this optimizer applies to.
	Type() types.FileType
	// Optimize consumes the previous stage's bundle and returns new data
	// and, optionally, a new map. A nil map means the stage did not touch
	// positions and the prior map is retained unchanged.
	Optimize(ctx context.Context, bundle *types.PipelineResult) (*Result, error)
}

// Result is the output of one optimizer stage.
type Result struct {
	Data string
	Map  *sourcemap.Map
}

// RunChain applies the optimizers matching the bundle's content type, in
// registration order, strictly sequentially: a later stage never begins
// before the prior one finishes, since later optimizers generally assume
// fully-transformed input. A stage returning a new map has it composed
// with the prior map so positions keep resolving to the original sources.
//
// A failing optimizer fails the whole chain for this bundle, wrapped with
// the optimizer's name and the output path; sibling bundles are unaffected
// by construction.
func RunChain(ctx context.Context, bundle *types.PipelineResult, optimizers []Optimizer) (*types.PipelineResult, error) {
	if bundle == nil {
		msg := "optimizer chain invoked without a bundle descriptor"
		if len(optimizers) > 0 {
			msg += " for type " + optimizers[0].Type().String()
		}
		return nil, errors.NewInternalError(msg)
	}

	for _, opt := range optimizers {
		if opt.Type() != bundle.Type {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := opt.Optimize(ctx, bundle)
		if err != nil {
			return nil, errors.WrapOptimizer(err, opt.Name(), bundle.Path)
		}

		bundle.Data = result.Data
		if result.Map != nil {
			if bundle.Map != nil {
				composed, err := sourcemap.Compose(result.Map, bundle.Map)
				if err != nil {
					return nil, errors.WrapOptimizer(err, opt.Name(), bundle.Path)
				}
				bundle.Map = composed
			} else {
				bundle.Map = result.Map
			}
		}
	}

	return bundle, nil
}
