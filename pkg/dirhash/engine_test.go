package dirhash_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stackvity/dirhash/internal/testutil"
	"github.com/stackvity/dirhash/pkg/dirhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Test Setup & Helpers ---

func collect(seq iter.Seq[dirhash.WorkStatus]) []dirhash.WorkStatus {
	var events []dirhash.WorkStatus
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func newTestEngine(t *testing.T, opts dirhash.Options) *dirhash.Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardHandler()
	}
	engine, err := dirhash.NewEngine(opts)
	require.NoError(t, err)
	return engine
}

func makeFiles(t *testing.T, root string, n int) map[string]string {
	t.Helper()
	structure := make(map[string]string, n)
	for i := 0; i < n; i++ {
		structure[fmt.Sprintf("dir%d/file%03d.txt", i%4, i)] = fmt.Sprintf("content-%d", i)
	}
	testutil.CreateTree(t, root, structure)
	return structure
}

func mustDigest(t *testing.T, algo dirhash.Algorithm, content string) string {
	t.Helper()
	h, err := dirhash.HashBytes(algo, []byte(content))
	require.NoError(t, err)
	return h
}

// instrumentedHasher wraps a FileHasher and records how many Hash calls are in
// flight at once.
type instrumentedHasher struct {
	inner    dirhash.FileHasher
	delay    time.Duration
	before   func(root, relPath string)
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (h *instrumentedHasher) Hash(ctx context.Context, root, relPath string) (dirhash.FileRecord, error) {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	h.calls.Add(1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if h.before != nil {
		h.before(root, relPath)
	}
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return dirhash.FileRecord{}, ctx.Err()
		}
	}
	return h.inner.Hash(ctx, root, relPath)
}

func newInstrumentedHasher(t *testing.T, delay time.Duration) *instrumentedHasher {
	t.Helper()
	inner, err := dirhash.NewDigestHasher(dirhash.AlgorithmBLAKE3, 0)
	require.NoError(t, err)
	return &instrumentedHasher{inner: inner, delay: delay}
}

// blockingHasher never finishes until ctx is done.
type blockingHasher struct{}

func (blockingHasher) Hash(ctx context.Context, _, _ string) (dirhash.FileRecord, error) {
	<-ctx.Done()
	return dirhash.FileRecord{}, ctx.Err()
}

type panickingHasher struct{}

func (panickingHasher) Hash(context.Context, string, string) (dirhash.FileRecord, error) {
	panic("boom")
}

// --- NewEngine ---

func TestNewEngine_Defaults(t *testing.T) {
	root := t.TempDir()
	engine := newTestEngine(t, dirhash.Options{RootPath: root})

	assert.Equal(t, runtime.NumCPU(), engine.Concurrency())
	assert.Equal(t, dirhash.AlgorithmBLAKE3, engine.Algorithm())
	assert.True(t, filepath.IsAbs(engine.RootPath()))
	assert.Equal(t, dirhash.StateIdle, engine.State())
}

func TestNewEngine_RelativeRootBecomesAbsolute(t *testing.T) {
	engine := newTestEngine(t, dirhash.Options{RootPath: "."})
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, engine.RootPath())
}

func TestNewEngine_InvalidOptions(t *testing.T) {
	testCases := []struct {
		name    string
		opts    dirhash.Options
		wantErr error
	}{
		{"empty root", dirhash.Options{RootPath: "  "}, dirhash.ErrConfigValidation},
		{"negative concurrency", dirhash.Options{RootPath: ".", MaxConcurrency: -1}, dirhash.ErrConfigValidation},
		{"negative max size", dirhash.Options{RootPath: ".", MaxFileSize: -5}, dirhash.ErrConfigValidation},
		{"unknown algorithm", dirhash.Options{RootPath: ".", HashAlgorithm: "crc32"}, dirhash.ErrUnsupportedAlgorithm},
		{"unknown symlink policy", dirhash.Options{RootPath: ".", SymlinkPolicy: "sometimes"}, dirhash.ErrConfigValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := dirhash.NewEngine(tc.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, dirhash.ErrConfigValidation)
			assert.Nil(t, engine)
		})
	}
}

func TestNewEngine_NormalizesCase(t *testing.T) {
	engine := newTestEngine(t, dirhash.Options{RootPath: ".", HashAlgorithm: " SHA256 ", SymlinkPolicy: "Follow"})
	assert.Equal(t, dirhash.AlgorithmSHA256, engine.Algorithm())
}

// --- Stream: event sequences ---

func TestEngine_Stream_EmptyDirectory(t *testing.T) {
	engine := newTestEngine(t, dirhash.Options{RootPath: t.TempDir()})

	events := collect(engine.Stream(context.Background()))
	assert.Equal(t, []dirhash.WorkStatus{
		dirhash.Started{TotalFiles: 0},
		dirhash.Result{Hashes: map[string]string{}},
	}, events)
	assert.Equal(t, dirhash.StateTerminated, engine.State())
}

func TestEngine_Stream_SingleFile(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "a.txt"), "hello")
	engine := newTestEngine(t, dirhash.Options{RootPath: root, HashAlgorithm: dirhash.AlgorithmSHA256})

	events := collect(engine.Stream(context.Background()))
	assert.Equal(t, []dirhash.WorkStatus{
		dirhash.Started{TotalFiles: 1},
		dirhash.Progress{CurrentFile: "a.txt", TotalHashedFiles: 1},
		dirhash.Result{Hashes: map[string]string{
			"a.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		}},
	}, events)
}

func TestEngine_Stream_ManyFiles(t *testing.T) {
	root := t.TempDir()
	structure := makeFiles(t, root, 57)
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 4})

	events := collect(engine.Stream(context.Background()))
	require.GreaterOrEqual(t, len(events), 2)

	started, ok := events[0].(dirhash.Started)
	require.True(t, ok, "first event must be Started, got %T", events[0])
	assert.Equal(t, len(structure), started.TotalFiles)

	result, ok := events[len(events)-1].(dirhash.Result)
	require.True(t, ok, "last event must be Result, got %T", events[len(events)-1])

	progress := events[1 : len(events)-1]
	require.Len(t, progress, started.TotalFiles)
	seen := make(map[string]bool, len(progress))
	for i, ev := range progress {
		p, ok := ev.(dirhash.Progress)
		require.True(t, ok, "event %d must be Progress, got %T", i+1, ev)
		assert.Equal(t, i+1, p.TotalHashedFiles)
		assert.False(t, seen[p.CurrentFile], "file %s reported twice", p.CurrentFile)
		seen[p.CurrentFile] = true
	}

	require.Len(t, result.Hashes, len(structure))
	for rel, content := range structure {
		assert.True(t, seen[rel], "no progress for %s", rel)
		assert.Equal(t, mustDigest(t, dirhash.AlgorithmBLAKE3, content), result.Hashes[rel], rel)
	}
}

func TestEngine_Stream_SingleWorkerKeepsEnumerationOrder(t *testing.T) {
	root := t.TempDir()
	structure := makeFiles(t, root, 12)
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 1})

	want := make([]string, 0, len(structure))
	for rel := range structure {
		want = append(want, rel)
	}
	sort.Strings(want)

	var got []string
	for ev := range engine.Stream(context.Background()) {
		if p, ok := ev.(dirhash.Progress); ok {
			got = append(got, p.CurrentFile)
		}
	}
	assert.Equal(t, want, got)
}

func TestEngine_Stream_Idempotent(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 20)

	first, err := dirhash.HashTree(context.Background(), dirhash.Options{RootPath: root, MaxConcurrency: 3})
	require.NoError(t, err)
	second, err := dirhash.HashTree(context.Background(), dirhash.Options{RootPath: root, MaxConcurrency: 7})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Ranging over the same Engine twice performs two independent runs.
	engine := newTestEngine(t, dirhash.Options{RootPath: root})
	seq := engine.Stream(context.Background())
	a := collect(seq)
	b := collect(seq)
	assert.Equal(t, a[len(a)-1], b[len(b)-1])
	assert.Equal(t, dirhash.Result{Hashes: first}, a[len(a)-1])
}

func TestEngine_Stream_PeakConcurrencyBounded(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 30)
	hasher := newInstrumentedHasher(t, 5*time.Millisecond)
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 3, Hasher: hasher})

	events := collect(engine.Stream(context.Background()))
	require.IsType(t, dirhash.Result{}, events[len(events)-1])
	assert.LessOrEqual(t, hasher.peak.Load(), int32(3))
	assert.Positive(t, hasher.peak.Load())
	assert.Equal(t, int32(30), hasher.calls.Load())
}

// --- Stream: failures ---

func TestEngine_Stream_MissingRoot(t *testing.T) {
	engine := newTestEngine(t, dirhash.Options{RootPath: filepath.Join(t.TempDir(), "missing")})

	events := collect(engine.Stream(context.Background()))
	require.Len(t, events, 1, "enumeration errors are reported before Started")
	errEv, ok := events[0].(dirhash.Error)
	require.True(t, ok)
	assert.ErrorIs(t, errEv, dirhash.ErrEnumeration)
	assert.ErrorIs(t, errEv.Cause, os.ErrNotExist)
}

func TestEngine_Stream_FileDeletedAfterEnumeration(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 10)
	hasher := newInstrumentedHasher(t, 0)
	hasher.before = func(root, relPath string) {
		if relPath == "dir1/file005.txt" {
			_ = os.Remove(filepath.Join(root, filepath.FromSlash(relPath)))
		}
	}
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 2, Hasher: hasher})

	events := collect(engine.Stream(context.Background()))
	require.IsType(t, dirhash.Started{}, events[0])
	last := events[len(events)-1]
	errEv, ok := last.(dirhash.Error)
	require.True(t, ok, "expected terminal Error, got %T", last)
	assert.ErrorIs(t, errEv.Cause, dirhash.ErrRead)
	assert.ErrorIs(t, errEv.Cause, os.ErrNotExist)
	for _, ev := range events {
		assert.NotEqual(t, dirhash.KindResult, ev.Kind())
	}
	assert.Zero(t, hasher.inFlight.Load())
}

func TestEngine_Stream_FileTooLarge(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "small.txt"), "ok")
	testutil.CreateDummyFile(t, filepath.Join(root, "huge.txt"), "this is far too large")
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxFileSize: 8, MaxConcurrency: 1})

	events := collect(engine.Stream(context.Background()))
	last := events[len(events)-1]
	require.Equal(t, dirhash.KindError, last.Kind())
	assert.ErrorIs(t, last.(dirhash.Error), dirhash.ErrTooLarge)
}

func TestEngine_Stream_HasherErrorAborts(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	readErr := fmt.Errorf("%w: b.txt: %w", dirhash.ErrRead, os.ErrPermission)

	hasher := new(testutil.MockFileHasher)
	hasher.On("Hash", mock.Anything, mock.Anything, "a.txt").Return(dirhash.FileRecord{Path: "a.txt", Hash: "aa"}, nil).Once()
	hasher.On("Hash", mock.Anything, mock.Anything, "b.txt").Return(dirhash.FileRecord{}, readErr).Once()
	hasher.On("Hash", mock.Anything, mock.Anything, "c.txt").Return(dirhash.FileRecord{Path: "c.txt", Hash: "cc"}, nil).Maybe()

	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 1, Hasher: hasher})
	events := collect(engine.Stream(context.Background()))

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, dirhash.Started{TotalFiles: 3}, events[0])
	assert.Equal(t, dirhash.Progress{CurrentFile: "a.txt", TotalHashedFiles: 1}, events[1])
	last := events[len(events)-1]
	require.IsType(t, dirhash.Error{}, last)
	assert.ErrorIs(t, last.(dirhash.Error), dirhash.ErrRead)
	assert.ErrorIs(t, last.(dirhash.Error), os.ErrPermission)
	hasher.AssertExpectations(t)
}

func TestEngine_Stream_WorkerPanicBecomesError(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "a.txt"), "a")
	engine := newTestEngine(t, dirhash.Options{RootPath: root, Hasher: panickingHasher{}})

	events := collect(engine.Stream(context.Background()))
	require.Len(t, events, 2)
	errEv, ok := events[1].(dirhash.Error)
	require.True(t, ok)
	assert.Contains(t, errEv.Error(), "panic")
	assert.Contains(t, errEv.Error(), "a.txt")
}

// --- Stream: cancellation & timeout ---

func TestEngine_Stream_BreakReleasesWorkers(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 40)
	hasher := newInstrumentedHasher(t, 2*time.Millisecond)
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 4, Hasher: hasher})

	progressSeen := 0
	for ev := range engine.Stream(context.Background()) {
		if _, ok := ev.(dirhash.Progress); ok {
			progressSeen++
			if progressSeen == 3 {
				break
			}
		}
	}

	assert.Equal(t, 3, progressSeen)
	assert.Zero(t, hasher.inFlight.Load(), "no Hash call may outlive the range statement")
	assert.Less(t, hasher.calls.Load(), int32(40))
	assert.Equal(t, dirhash.StateTerminated, engine.State())
}

func TestEngine_Stream_CancelIsSilent(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 40)
	hasher := newInstrumentedHasher(t, 2*time.Millisecond)
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 4, Hasher: hasher})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var events []dirhash.WorkStatus
	for ev := range engine.Stream(ctx) {
		events = append(events, ev)
		if ev.Kind() == dirhash.KindProgress {
			cancel()
		}
	}

	require.Len(t, events, 2, "nothing may be yielded after cancellation")
	assert.IsType(t, dirhash.Started{}, events[0])
	assert.IsType(t, dirhash.Progress{}, events[1])
	assert.Zero(t, hasher.inFlight.Load())
}

func TestEngine_Stream_Timeout(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 5)
	engine := newTestEngine(t, dirhash.Options{RootPath: root, MaxConcurrency: 2, Hasher: blockingHasher{}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	events := collect(engine.Stream(ctx))
	require.Len(t, events, 2)
	assert.Equal(t, dirhash.Started{TotalFiles: 5}, events[0])
	errEv, ok := events[1].(dirhash.Error)
	require.True(t, ok, "expected Error, got %T", events[1])
	assert.ErrorIs(t, errEv, dirhash.ErrTimeout)
	assert.ErrorIs(t, errEv, context.DeadlineExceeded)
}

func TestEngine_Stream_AlreadyCancelled(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 3)
	engine := newTestEngine(t, dirhash.Options{RootPath: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, collect(engine.Stream(ctx)))
}

func TestEngine_Stream_AlreadyExpired(t *testing.T) {
	root := t.TempDir()
	makeFiles(t, root, 3)
	engine := newTestEngine(t, dirhash.Options{RootPath: root})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	events := collect(engine.Stream(ctx))
	require.Len(t, events, 1)
	assert.True(t, errors.Is(events[0].(dirhash.Error), dirhash.ErrTimeout))
}
