package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/assetforge/assetforge/internal/config"
	forgeerrors "github.com/assetforge/assetforge/internal/errors"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/optimize"
)

// State is a worker's position in its lifecycle state machine.
type State int

const (
	// StateInitializing: loading the config snapshot and plugin set. A
	// failure here leaves the worker unusable; it never signals ready.
	StateInitializing State = iota
	// StateReady: awaiting a job message.
	StateReady
	// StateProcessing: executing a job; exactly one response will be
	// sent before the worker returns to Ready.
	StateProcessing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Options configures a worker process.
type Options struct {
	// LoadEnv builds the worker's local environment snapshot. Defaults
	// to loading config from viper state and the built-in optimizers.
	LoadEnv func() (*Env, error)
	Log     logging.Logger
}

// Worker runs the job protocol over a message stream, typically the
// process's stdin and stdout. It is single-job-at-a-time: a coordinator
// wanting parallelism runs multiple worker processes.
type Worker struct {
	state   State
	env     *Env
	loadEnv func() (*Env, error)
	dec     *json.Decoder
	enc     *json.Encoder
	log     logging.Logger
}

// New creates a worker reading requests from r and writing responses to w.
func New(r io.Reader, w io.Writer, opts Options) *Worker {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Worker{
		state:   StateInitializing,
		loadEnv: opts.LoadEnv,
		dec:     json.NewDecoder(r),
		enc:     json.NewEncoder(w),
		log:     log.WithComponent("worker"),
	}
}

// DefaultEnv loads the worker's own config snapshot and the built-in
// optimizer plugins.
func DefaultEnv() (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &Env{
		Cfg: cfg,
		Optimizers: []optimize.Optimizer{
			optimize.NewScriptMinifier(),
			optimize.NewStylesheetMinifier(),
		},
		Log: logging.Nop(),
	}, nil
}

// Run initializes the worker, signals readiness, then serves jobs until
// the request stream closes or ctx is cancelled. A job failure is reported
// as an error response and never terminates the worker; only an
// initialization failure does.
func (w *Worker) Run(ctx context.Context) error {
	env, err := w.initialize()
	if err != nil {
		return forgeerrors.WrapWorkerInit(err)
	}
	w.env = env

	if err := w.enc.Encode(ReadySignal{Ready: true}); err != nil {
		return forgeerrors.WrapWorkerInit(err)
	}
	w.state = StateReady
	w.log.Debug(ctx, "worker ready")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		var req Request
		if err := w.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading job request: %w", err)
		}

		w.state = StateProcessing
		resp := w.process(ctx, req)
		if err := w.enc.Encode(resp); err != nil {
			return fmt.Errorf("writing job response: %w", err)
		}
		w.state = StateReady
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return w.state
}

func (w *Worker) initialize() (*Env, error) {
	if w.loadEnv != nil {
		return w.loadEnv()
	}
	return DefaultEnv()
}

// process executes one job and builds exactly one response. Panics inside
// job execution become error responses so a bad job cannot crash the
// worker process.
func (w *Worker) process(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Error: fmt.Sprintf("job panicked: %v", r)}
		}
	}()

	runner, ok := jobRunners[req.Type]
	if !ok {
		return Response{Error: fmt.Sprintf("unknown job type %q", req.Type)}
	}

	result, err := runner(ctx, w.env, req.Data.Hash)
	if err != nil {
		w.log.Warn(ctx, err, "job failed", "type", string(req.Type))
		return Response{Error: err.Error()}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return Response{Error: fmt.Sprintf("serializing job result: %v", err)}
	}
	return Response{Result: payload}
}
