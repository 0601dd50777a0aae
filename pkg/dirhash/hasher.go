package dirhash

import (
	"context"
	"crypto/md5"  // #nosec G501 -- content fingerprinting only
	"crypto/sha1" // #nosec G505 -- content fingerprinting only
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// newDigest returns a constructor for the named algorithm.
func newDigest(algorithm Algorithm) (func() hash.Hash, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(string(algorithm)))) {
	case AlgorithmBLAKE3, "":
		return func() hash.Hash { return blake3.New() }, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	case AlgorithmSHA1:
		return sha1.New, nil // #nosec G401
	case AlgorithmMD5:
		return md5.New, nil // #nosec G401
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// HashBytes returns the lowercase hex digest of data. Identical bytes always
// produce an identical digest.
func HashBytes(algorithm Algorithm, data []byte) (string, error) {
	newFn, err := newDigest(algorithm)
	if err != nil {
		return "", err
	}
	h := newFn()
	_, _ = h.Write(data) // hash.Hash.Write never returns an error
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestHasher is the default FileHasher. It streams a file through a fixed
// digest and never writes to the filesystem.
type DigestHasher struct {
	algorithm Algorithm
	newHash   func() hash.Hash
	maxSize   int64
	bufPool   sync.Pool
}

// NewDigestHasher creates a FileHasher for algorithm. maxSize > 0 rejects files
// larger than maxSize bytes with ErrTooLarge.
func NewDigestHasher(algorithm Algorithm, maxSize int64) (*DigestHasher, error) {
	newFn, err := newDigest(algorithm)
	if err != nil {
		return nil, err
	}
	if maxSize < 0 {
		maxSize = 0
	}
	return &DigestHasher{
		algorithm: algorithm,
		newHash:   newFn,
		maxSize:   maxSize,
		bufPool: sync.Pool{New: func() any {
			buf := make([]byte, readBufferSize)
			return &buf
		}},
	}, nil
}

// Algorithm returns the digest this hasher computes.
func (h *DigestHasher) Algorithm() Algorithm { return h.algorithm }

// Hash reads root/relPath to EOF and returns its digest. The read loop checks ctx
// between chunks; on cancellation the file is closed and ctx.Err() is returned
// unwrapped.
func (h *DigestHasher) Hash(ctx context.Context, root, relPath string) (rec FileRecord, err error) {
	fullPath := filepath.Join(root, filepath.FromSlash(relPath))

	f, err := os.Open(fullPath) // #nosec G304
	if err != nil {
		return FileRecord{}, fmt.Errorf("%w: %s: %w", ErrRead, relPath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %s: %w", ErrRead, relPath, closeErr)
		}
	}()

	if h.maxSize > 0 {
		info, statErr := f.Stat()
		if statErr != nil {
			return FileRecord{}, fmt.Errorf("%w: %s: %w", ErrRead, relPath, statErr)
		}
		if info.Size() > h.maxSize {
			return FileRecord{}, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, relPath, info.Size(), h.maxSize)
		}
	}

	digest := h.newHash()
	bufPtr := h.bufPool.Get().(*[]byte)
	defer h.bufPool.Put(bufPtr)
	buf := *bufPtr

	var read int64
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FileRecord{}, ctxErr
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			_, _ = digest.Write(buf[:n])
			read += int64(n)
			// The file may grow between stat and read.
			if h.maxSize > 0 && read > h.maxSize {
				return FileRecord{}, fmt.Errorf("%w: %s grew past %d bytes while reading", ErrTooLarge, relPath, h.maxSize)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return FileRecord{}, fmt.Errorf("%w: %s: %w", ErrRead, relPath, rerr)
		}
	}

	return FileRecord{
		Path: relPath,
		Size: read,
		Hash: hex.EncodeToString(digest.Sum(nil)),
	}, nil
}
