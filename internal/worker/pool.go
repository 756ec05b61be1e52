package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	forgeerrors "github.com/assetforge/assetforge/internal/errors"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/types"
)

// Pool manages a set of worker processes and dispatches jobs to idle ones.
// Each worker handles one job at a time; parallelism comes from running
// multiple processes. A worker that fails initialization never enters the
// idle set and is never routed jobs.
type Pool struct {
	procs []*proc
	idle  chan *proc
	log   logging.Logger

	mu     sync.Mutex
	closed bool
}

// proc is one spawned worker process with its message streams.
type proc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder
	dec   *json.Decoder
}

// NewPool spawns count worker processes running the given command and
// waits for each to signal readiness. Workers that fail to initialize are
// discarded with a warning; the pool errors only when no worker at all
// reached Ready.
func NewPool(ctx context.Context, count int, command string, args []string, log logging.Logger) (*Pool, error) {
	if log == nil {
		log = logging.Nop()
	}
	pool := &Pool{
		idle: make(chan *proc, count),
		log:  log.WithComponent("worker-pool"),
	}

	for i := 0; i < count; i++ {
		p, err := spawn(ctx, command, args)
		if err != nil {
			pool.log.Warn(ctx, err, "worker failed to start", "index", i)
			continue
		}
		pool.procs = append(pool.procs, p)
		pool.idle <- p
	}

	if len(pool.procs) == 0 {
		return nil, forgeerrors.WrapWorkerInit(fmt.Errorf("no worker process reached ready state"))
	}
	return pool, nil
}

// spawn starts one worker process and consumes its ready signal. An error
// or a missing ready signal marks the worker unusable.
func spawn(ctx context.Context, command string, args []string) (*proc, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &proc{
		cmd:   cmd,
		stdin: stdin,
		enc:   json.NewEncoder(stdin),
		dec:   json.NewDecoder(stdout),
	}

	var ready ReadySignal
	if err := p.dec.Decode(&ready); err != nil || !ready.Ready {
		p.kill()
		if err == nil {
			err = fmt.Errorf("worker did not signal ready")
		}
		return nil, err
	}
	return p, nil
}

// Dispatch sends a job to an idle worker and returns its single response.
// The worker returns to the idle set afterwards, including after a job
// error; only a broken message stream retires it.
func (p *Pool) Dispatch(ctx context.Context, req Request) (Response, error) {
	var w *proc
	select {
	case w = <-p.idle:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	if err := w.enc.Encode(req); err != nil {
		p.retire(w)
		return Response{}, fmt.Errorf("sending job to worker: %w", err)
	}

	var resp Response
	if err := w.dec.Decode(&resp); err != nil {
		p.retire(w)
		return Response{}, fmt.Errorf("reading worker response: %w", err)
	}

	p.mu.Lock()
	if !p.closed {
		p.idle <- w
	}
	p.mu.Unlock()
	return resp, nil
}

// Optimize runs a bundle's optimize stage on a worker process instead of
// in-process: it serializes the bundle as an OptimizeJob, dispatches it to
// an idle worker, and folds the result back into the bundle. A job error
// reported by the worker surfaces as a JobError for the caller's usual
// per-target handling.
func (p *Pool) Optimize(ctx context.Context, bundle *types.PipelineResult) (*types.PipelineResult, error) {
	hash, err := json.Marshal(OptimizeHash{
		Path: bundle.Path,
		Type: bundle.Type,
		Data: bundle.Data,
		Map:  bundle.Map,
	})
	if err != nil {
		return nil, fmt.Errorf("serializing OptimizeJob hash: %w", err)
	}

	resp, err := p.Dispatch(ctx, Request{Type: OptimizeJob, Data: JobData{Hash: hash}})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, forgeerrors.NewJobError(resp.Error)
	}

	var result OptimizeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("deserializing OptimizeJob result: %w", err)
	}
	bundle.Data = result.Data
	bundle.Map = result.Map
	return bundle, nil
}

// retire kills a worker with a broken message stream and removes it from
// the usable set, so Size stays accurate and Close does not re-reap it.
func (p *Pool) retire(w *proc) {
	w.kill()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, candidate := range p.procs {
		if candidate == w {
			p.procs = append(p.procs[:i], p.procs[i+1:]...)
			return
		}
	}
}

// Size returns the number of usable workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.procs)
}

// Close shuts down all worker processes by closing their request streams.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	procs := p.procs
	p.procs = nil
	p.mu.Unlock()

	for _, w := range procs {
		_ = w.stdin.Close()
		_ = w.cmd.Wait()
	}
}

func (p *proc) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}
