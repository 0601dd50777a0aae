// Package dirhash computes a content hash for every regular file under a
// directory tree while reporting progress as a lazily evaluated event sequence.
//
// # Events
//
// A run yields Started(total), one Progress per hashed file in completion
// order, and then exactly one Result or Error. Progress.TotalHashedFiles grows
// by one per event; the identity order of files is not guaranteed.
//
// # Failure policy
//
// Any per-file failure (ErrRead, ErrTooLarge) is fatal: remaining work is
// abandoned, partial results are discarded and a single Error is yielded.
// Enumeration failures (ErrEnumeration) are yielded before Started.
//
// # Symlinks
//
// With SymlinkSkip (the default) links below the root are neither followed nor
// counted. SymlinkFollow resolves them and descends into linked directories,
// refusing links that point back to an ancestor. A root that is itself a link
// is always resolved.
//
// # Concurrent mutation
//
// The file list is fixed when enumeration completes. Files created later are
// not hashed; files removed or made unreadable before they are hashed end the
// run with ErrRead. Content changed mid-read is hashed as read.
package dirhash

import (
	"context"
	"fmt"
	"iter"
)

// Stream validates opts and returns the event sequence for hashing opts.RootPath.
func Stream(ctx context.Context, opts Options) (iter.Seq[WorkStatus], error) {
	engine, err := NewEngine(opts)
	if err != nil {
		return nil, err
	}
	return engine.Stream(ctx), nil
}

// HashTree runs a full hashing pass and returns the resulting mapping, or the
// cause carried by the terminal Error event.
func HashTree(ctx context.Context, opts Options) (map[string]string, error) {
	seq, err := Stream(ctx, opts)
	if err != nil {
		return nil, err
	}
	for ev := range seq {
		switch status := ev.(type) {
		case Result:
			return status.Hashes, nil
		case Error:
			return nil, status.Cause
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
	}
	return nil, ErrCancelled
}
