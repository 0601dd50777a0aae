package dirhash

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// FileHasher computes the digest of a single file below root.
// Implementations MUST be safe for concurrent use; the engine calls Hash from
// every worker goroutine.
type FileHasher interface {
	Hash(ctx context.Context, root, relPath string) (FileRecord, error)
}

// Options holds all configuration for a hashing run.
type Options struct {
	// --- Core ---
	RootPath string `mapstructure:"root"` // Required: directory to hash

	// --- Behavior ---
	MaxConcurrency int           `mapstructure:"concurrency"` // Workers hashing at once (0=runtime.NumCPU())
	HashAlgorithm  Algorithm     `mapstructure:"algorithm"`   // Digest ("" = blake3)
	SymlinkPolicy  SymlinkPolicy `mapstructure:"symlinks"`    // "skip" (default) or "follow"
	MaxFileSize    int64         `mapstructure:"maxFileSize"` // Bytes; 0 disables the ceiling
	IgnorePatterns []string      `mapstructure:"ignore"`      // gitignore-style patterns, relative to root
	UseGitignore   bool          `mapstructure:"gitignore"`   // Also honour .gitignore files found in the tree

	// --- Injected Dependencies ---
	Logger slog.Handler `mapstructure:"-"` // Optional: nil discards library logs
	Hasher FileHasher   `mapstructure:"-"` // Optional: defaults to a DigestHasher for HashAlgorithm
}

// normalize validates opts and fills in defaults. It returns a copy; the caller's
// value is never modified.
func (o Options) normalize() (Options, error) {
	if strings.TrimSpace(o.RootPath) == "" {
		return o, fmt.Errorf("%w: root path cannot be empty", ErrConfigValidation)
	}
	if o.MaxConcurrency < 0 {
		return o, fmt.Errorf("%w: concurrency cannot be negative (got %d)", ErrConfigValidation, o.MaxConcurrency)
	}
	if o.MaxConcurrency == 0 {
		o.MaxConcurrency = runtime.NumCPU()
	}
	if o.MaxFileSize < 0 {
		return o, fmt.Errorf("%w: max file size cannot be negative (got %d)", ErrConfigValidation, o.MaxFileSize)
	}

	o.HashAlgorithm = Algorithm(strings.ToLower(strings.TrimSpace(string(o.HashAlgorithm))))
	if o.HashAlgorithm == "" {
		o.HashAlgorithm = DefaultAlgorithm
	}
	if !slices.Contains(SupportedAlgorithms, o.HashAlgorithm) {
		return o, fmt.Errorf("%w: %w: %q", ErrConfigValidation, ErrUnsupportedAlgorithm, o.HashAlgorithm)
	}

	o.SymlinkPolicy = SymlinkPolicy(strings.ToLower(strings.TrimSpace(string(o.SymlinkPolicy))))
	if o.SymlinkPolicy == "" {
		o.SymlinkPolicy = DefaultSymlinkPolicy
	}
	if o.SymlinkPolicy != SymlinkSkip && o.SymlinkPolicy != SymlinkFollow {
		return o, fmt.Errorf("%w: invalid symlink policy %q (want %q or %q)", ErrConfigValidation, o.SymlinkPolicy, SymlinkSkip, SymlinkFollow)
	}

	absRoot, err := filepath.Abs(o.RootPath)
	if err != nil {
		return o, fmt.Errorf("%w: cannot resolve root path %q: %w", ErrConfigValidation, o.RootPath, err)
	}
	o.RootPath = absRoot
	o.IgnorePatterns = slices.Clone(o.IgnorePatterns)

	if o.Logger == nil {
		o.Logger = slog.NewTextHandler(io.Discard, nil)
	}
	if o.Hasher == nil {
		// Algorithm was validated above, so this cannot fail.
		h, err := NewDigestHasher(o.HashAlgorithm, o.MaxFileSize)
		if err != nil {
			return o, fmt.Errorf("%w: %w", ErrConfigValidation, err)
		}
		o.Hasher = h
	}
	return o, nil
}
