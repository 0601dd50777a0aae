package dirhash

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

var errAggregatorFinalized = errors.New("result aggregator already finalized")

// resultAggregator accumulates (path, hash) pairs for one run. It exposes no
// partial state; finalize hands out the mapping exactly once.
type resultAggregator struct {
	mu        sync.Mutex
	hashes    map[string]string
	bytes     int64
	finalized bool
}

// newResultAggregator creates an aggregator sized for the expected file count.
func newResultAggregator(expected int) *resultAggregator {
	return &resultAggregator{hashes: make(map[string]string, expected)}
}

// add records one file. A path may be added at most once.
func (a *resultAggregator) add(rec FileRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return errAggregatorFinalized
	}
	if _, exists := a.hashes[rec.Path]; exists {
		return fmt.Errorf("duplicate result for %q", rec.Path)
	}
	a.hashes[rec.Path] = rec.Hash
	a.bytes += rec.Size
	return nil
}

// count returns the number of files recorded so far.
func (a *resultAggregator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.hashes)
}

// totalBytes returns the number of bytes hashed so far.
func (a *resultAggregator) totalBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes
}

// finalize returns a copy of the mapping and seals the aggregator.
func (a *resultAggregator) finalize() (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return nil, errAggregatorFinalized
	}
	a.finalized = true
	return maps.Clone(a.hashes), nil
}

// discard seals the aggregator and drops everything collected.
func (a *resultAggregator) discard() {
	a.mu.Lock()
	a.finalized = true
	a.hashes = nil
	a.mu.Unlock()
}
