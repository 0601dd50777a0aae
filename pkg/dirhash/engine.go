package dirhash

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Engine turns the enumerated file list into an ordered WorkStatus sequence,
// hashing files on a bounded pool of worker goroutines.
type Engine struct {
	opts   Options
	logger *slog.Logger
	state  atomic.Int32 // State of the most recent run
}

// workResult carries one completed hash from a worker to the emitter.
type workResult struct {
	path     string
	rec      FileRecord
	err      error
	workerID int
	duration time.Duration
}

// NewEngine validates opts, fills in defaults and returns an Engine ready to stream.
func NewEngine(opts Options) (*Engine, error) {
	normalized, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	logger := slog.New(normalized.Logger).With(slog.String("component", "engine"))
	logger.Debug("Engine configured",
		slog.String("root", normalized.RootPath),
		slog.Int("concurrency", normalized.MaxConcurrency),
		slog.String("algorithm", string(normalized.HashAlgorithm)),
		slog.String("symlinks", string(normalized.SymlinkPolicy)),
		slog.Int64("maxFileSize", normalized.MaxFileSize),
	)
	return &Engine{opts: normalized, logger: logger}, nil
}

// RootPath returns the absolute root directory being hashed.
func (e *Engine) RootPath() string { return e.opts.RootPath }

// Algorithm returns the digest algorithm in use.
func (e *Engine) Algorithm() Algorithm { return e.opts.HashAlgorithm }

// Concurrency returns the maximum number of files hashed at once.
func (e *Engine) Concurrency() int { return e.opts.MaxConcurrency }

// State returns the lifecycle state of the most recent run.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Debug("State changed", slog.String("state", s.String()))
}

// Stream returns the lazily evaluated event sequence of one hashing run. Nothing
// happens until the caller ranges over it, and each range performs a fresh run.
//
// The sequence is Started, then one Progress per hashed file in completion
// order, then exactly one Result or Error. Breaking out of the range or
// cancelling ctx stops dispatch; by the time the range statement returns every
// worker has exited and closed its file. After cancellation no further events
// are yielded, except that an expired deadline yields one Error wrapping ErrTimeout.
func (e *Engine) Stream(ctx context.Context) iter.Seq[WorkStatus] {
	return func(yield func(WorkStatus) bool) {
		e.run(ctx, yield)
	}
}

func (e *Engine) run(parent context.Context, yield func(WorkStatus) bool) {
	startTime := time.Now()
	e.setState(StateEnumerating)
	defer e.setState(StateTerminated)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	walker, err := NewWalker(&e.opts, e.opts.Logger)
	if err != nil {
		yield(Error{Cause: err})
		return
	}
	files, err := walker.Enumerate(ctx)
	if err != nil {
		if parent.Err() != nil {
			e.finishCancelled(parent, yield)
			return
		}
		e.logger.Error("Enumeration failed", slog.String("error", err.Error()))
		yield(Error{Cause: err})
		return
	}

	e.setState(StateStarted)
	if !e.emit(parent, yield, Started{TotalFiles: len(files)}) {
		return
	}

	agg := newResultAggregator(len(files))
	jobs := make(chan string)
	results := make(chan workResult)
	var wg sync.WaitGroup

	workers := min(e.opts.MaxConcurrency, len(files))
	e.logger.Debug("Starting worker pool", slog.Int("count", workers), slog.Int("files", len(files)))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.hashWorker(ctx, &wg, i, jobs, results)
	}

	wg.Add(1)
	go e.dispatch(ctx, &wg, files, jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Every exit path cancels outstanding work and waits for the pool.
	defer func() {
		cancel()
		for range results {
		}
		e.logger.Debug("Worker pool stopped")
	}()

	e.setState(StateRunning)
	hashed := 0
	for res := range results {
		if res.err != nil {
			if isContextErr(res.err) && ctx.Err() != nil {
				continue
			}
			e.setState(StateDraining)
			cancel()
			agg.discard()
			if parent.Err() != nil {
				e.finishCancelled(parent, yield)
				return
			}
			e.logger.Error("Hashing failed, aborting run",
				slog.String("path", res.path),
				slog.Int("workerID", res.workerID),
				slog.String("error", res.err.Error()),
				slog.Int("hashed", hashed),
				slog.Int("total", len(files)),
			)
			yield(Error{Cause: res.err})
			return
		}

		if addErr := agg.add(res.rec); addErr != nil {
			cancel()
			agg.discard()
			yield(Error{Cause: addErr})
			return
		}
		hashed++
		e.logger.Debug("File hashed",
			slog.String("path", res.rec.Path),
			slog.Int("workerID", res.workerID),
			slog.Duration("duration", res.duration),
		)
		if !e.emit(parent, yield, Progress{CurrentFile: res.rec.Path, TotalHashedFiles: hashed}) {
			return
		}
	}

	e.setState(StateDraining)
	if parent.Err() != nil {
		e.finishCancelled(parent, yield)
		return
	}
	if hashed != len(files) {
		agg.discard()
		yield(Error{Cause: fmt.Errorf("%w: hashed %d of %d files", ErrRead, hashed, len(files))})
		return
	}

	totalBytes := agg.totalBytes()
	hashes, err := agg.finalize()
	if err != nil {
		yield(Error{Cause: err})
		return
	}
	e.logger.Info("Hashing run finished",
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("files", len(hashes)),
		slog.Int64("bytes", totalBytes),
	)
	yield(Result{Hashes: hashes})
}

// emit yields ev unless ctx is already done. It returns false when the run
// must stop.
func (e *Engine) emit(ctx context.Context, yield func(WorkStatus) bool, ev WorkStatus) bool {
	if ctx.Err() != nil {
		e.finishCancelled(ctx, yield)
		return false
	}
	return yield(ev)
}

// finishCancelled ends a run whose context is done. Only an expired deadline
// produces an event.
func (e *Engine) finishCancelled(ctx context.Context, yield func(WorkStatus) bool) {
	e.setState(StateDraining)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("Hashing run timed out")
		yield(Error{Cause: fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())})
		return
	}
	e.logger.Info("Hashing run cancelled", slog.Any("reason", ctx.Err()))
}

// dispatch feeds files to the workers until all are queued or ctx is done.
func (e *Engine) dispatch(ctx context.Context, wg *sync.WaitGroup, files []string, jobs chan<- string) {
	defer wg.Done()
	defer close(jobs)
	for _, f := range files {
		select {
		case jobs <- f:
		case <-ctx.Done():
			e.logger.Debug("Dispatch stopped", slog.String("reason", ctx.Err().Error()))
			return
		}
	}
}

// hashWorker is the main function executed by each worker goroutine.
func (e *Engine) hashWorker(ctx context.Context, wg *sync.WaitGroup, workerID int, jobs <-chan string, results chan<- workResult) {
	var current string
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered in worker", slog.Int("workerID", workerID), slog.Any("panicValue", r))
			select {
			case results <- workResult{path: current, workerID: workerID, err: fmt.Errorf("panic while hashing %q: %v", current, r)}:
			case <-ctx.Done():
			}
		}
		wg.Done()
	}()

	for {
		select {
		case rel, ok := <-jobs:
			if !ok {
				return
			}
			current = rel
			start := time.Now()
			rec, err := e.opts.Hasher.Hash(ctx, e.opts.RootPath, rel)
			rec.Path = rel
			res := workResult{path: rel, rec: rec, err: err, workerID: workerID, duration: time.Since(start)}
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
