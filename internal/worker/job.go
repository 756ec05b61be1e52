// Package worker implements the message-based job protocol that lets
// compile and optimize work run in isolated worker processes. No mutable
// memory crosses the process boundary: every job serializes the minimal
// state needed to reproduce its operation, and the worker answers with
// exactly one result or error message.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/assetforge/assetforge/internal/bundle"
	"github.com/assetforge/assetforge/internal/config"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/optimize"
	"github.com/assetforge/assetforge/internal/sourcemap"
	"github.com/assetforge/assetforge/internal/types"
)

// JobType identifies a job kind.
type JobType string

const (
	CompileJob  JobType = "CompileJob"
	OptimizeJob JobType = "OptimizeJob"
)

// Request is the coordinator-to-worker job message.
type Request struct {
	Type JobType `json:"type"`
	Data JobData `json:"data"`
}

// JobData carries the serialized job state.
type JobData struct {
	Hash json.RawMessage `json:"hash"`
}

// Response is the worker-to-coordinator reply: exactly one of Result or
// Error is set.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ReadySignal is sent once by a worker after successful initialization.
type ReadySignal struct {
	Ready bool `json:"ready"`
}

// CompileHash is the serialized state of a CompileJob: the target path and
// the already-ordered file identifiers to concatenate. The worker reads the
// file contents from its own filesystem view.
type CompileHash struct {
	Path  string         `json:"path"`
	Type  types.FileType `json:"type"`
	Files []string       `json:"files"`
}

// CompileResult is a CompileJob's output.
type CompileResult struct {
	Data string         `json:"data"`
	Map  *sourcemap.Map `json:"map,omitempty"`
}

// OptimizeHash is the serialized state of an OptimizeJob: the concatenated
// bundle to run the worker's local optimizer chain over.
type OptimizeHash struct {
	Path string         `json:"path"`
	Type types.FileType `json:"type"`
	Data string         `json:"data"`
	Map  *sourcemap.Map `json:"map,omitempty"`
}

// OptimizeResult is an OptimizeJob's output.
type OptimizeResult struct {
	Data string         `json:"data"`
	Map  *sourcemap.Map `json:"map,omitempty"`
}

// Env is a worker's local snapshot of config and plugins, loaded during
// initialization and read-only afterwards.
type Env struct {
	Cfg        *config.Config
	Optimizers []optimize.Optimizer
	Log        logging.Logger
}

// jobRunner deserializes a job's hash and executes its defined work.
type jobRunner func(ctx context.Context, env *Env, hash json.RawMessage) (any, error)

// jobRunners maps each job kind to its runner.
var jobRunners = map[JobType]jobRunner{
	CompileJob:  runCompileJob,
	OptimizeJob: runOptimizeJob,
}

func runCompileJob(ctx context.Context, env *Env, raw json.RawMessage) (any, error) {
	var hash CompileHash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return nil, fmt.Errorf("deserializing CompileJob hash: %w", err)
	}
	if hash.Path == "" || len(hash.Files) == 0 {
		return nil, fmt.Errorf("CompileJob hash missing target path or files")
	}

	records := make([]*types.FileRecord, 0, len(hash.Files))
	for _, path := range hash.Files {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		records = append(records, &types.FileRecord{
			Path:    path,
			Type:    hash.Type,
			Content: string(content),
		})
	}

	data, composed, err := bundle.Concat(records, hash.Type, concatOptions(env.Cfg, hash))
	if err != nil {
		return nil, err
	}
	return &CompileResult{Data: data, Map: composed}, nil
}

func runOptimizeJob(ctx context.Context, env *Env, raw json.RawMessage) (any, error) {
	var hash OptimizeHash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return nil, fmt.Errorf("deserializing OptimizeJob hash: %w", err)
	}
	if hash.Path == "" {
		return nil, fmt.Errorf("OptimizeJob hash missing target path")
	}

	result, err := optimize.RunChain(ctx, &types.PipelineResult{
		Path: hash.Path,
		Type: hash.Type,
		Data: hash.Data,
		Map:  hash.Map,
	}, env.Optimizers)
	if err != nil {
		return nil, err
	}
	return &OptimizeResult{Data: result.Data, Map: result.Map}, nil
}

// concatOptions mirrors the coordinator's concat configuration from the
// worker's own config snapshot.
func concatOptions(cfg *config.Config, hash CompileHash) bundle.ConcatOptions {
	opts := bundle.ConcatOptions{
		OutputPath: hash.Path,
		WithMap:    cfg.SourceMaps != config.SourceMapsOff,
	}
	if hash.Type == types.FileTypeScript && cfg.Modules.Wrapper == "commonjs" {
		opts.Wrapper = bundle.CommonJSWrapper
		if cfg.Modules.Definition {
			opts.Definition = bundle.CommonJSDefinition()
		}
	}
	return opts
}
