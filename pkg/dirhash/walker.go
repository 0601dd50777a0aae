package dirhash

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Walker enumerates every regular file under the configured root. It is the
// first stage of a run; hashing never starts before Enumerate returns.
type Walker struct {
	opts    *Options
	logger  *slog.Logger
	matcher gitignore.Matcher // nil when no ignore patterns are configured
}

// NewWalker creates a Walker for opts.RootPath.
func NewWalker(opts *Options, loggerHandler slog.Handler) (*Walker, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: walker options cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "walker"))

	var patterns []gitignore.Pattern
	if opts.UseGitignore {
		// The matcher gives later patterns priority, so explicit ones go last.
		found, err := gitignore.ReadPatterns(osfs.New(opts.RootPath), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read .gitignore files under %q: %w", ErrEnumeration, opts.RootPath, err)
		}
		logger.Debug(".gitignore files loaded", slog.Int("patterns", len(found)))
		patterns = append(patterns, found...)
	}
	patterns = append(patterns, parseIgnorePatterns(opts.IgnorePatterns)...)

	var matcher gitignore.Matcher
	if len(patterns) > 0 {
		matcher = gitignore.NewMatcher(patterns)
		logger.Debug("Ignore patterns loaded", slog.Int("count", len(patterns)))
	}

	return &Walker{opts: opts, logger: logger, matcher: matcher}, nil
}

// parseIgnorePatterns turns gitignore-style lines into matcher patterns.
// Blank lines and comments are dropped.
func parseIgnorePatterns(raw []string) []gitignore.Pattern {
	patterns := make([]gitignore.Pattern, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(filepath.ToSlash(line), nil))
	}
	return patterns
}

// Enumerate returns the root-relative, slash-separated path of every regular
// file under the root, sorted lexically. Any unreadable directory aborts the
// whole enumeration with ErrEnumeration.
func (w *Walker) Enumerate(ctx context.Context) ([]string, error) {
	root, err := w.resolveRoot()
	if err != nil {
		return nil, err
	}
	w.logger.Info("Starting directory walk", slog.String("path", root), slog.String("symlinks", string(w.opts.SymlinkPolicy)))

	files := make([]string, 0, 256)
	if err := w.walk(ctx, root, "", &files); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.logger.Info("Directory walk cancelled", slog.String("reason", err.Error()))
			return nil, err
		}
		w.logger.Error("Directory walk failed", slog.String("error", err.Error()))
		return nil, err
	}

	sort.Strings(files)
	w.logger.Info("Directory walk completed", slog.Int("files", len(files)))
	return files, nil
}

// resolveRoot checks that the root exists and is a directory. A root that is
// itself a symlink is resolved once, regardless of SymlinkPolicy.
func (w *Walker) resolveRoot() (string, error) {
	root := w.opts.RootPath
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: cannot access root %q: %w", ErrEnumeration, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: root %q is not a directory", ErrEnumeration, root)
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve root %q: %w", ErrEnumeration, root, err)
	}
	return resolved, nil
}

// walk traverses the physical directory dir. prefix is the logical
// root-relative path dir is reached by ("" for the root itself).
func (w *Walker) walk(ctx context.Context, dir, prefix string, files *[]string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: cannot read %q: %w", ErrEnumeration, p, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return fmt.Errorf("%w: cannot relativize %q: %w", ErrEnumeration, p, relErr)
		}
		if rel == "." {
			return nil
		}
		rel = path.Join(prefix, filepath.ToSlash(rel))

		if d.Type()&fs.ModeSymlink != 0 {
			return w.visitSymlink(ctx, p, rel, files)
		}

		isDir := d.IsDir()
		if w.ignored(rel, isDir) {
			w.logger.Debug("Path ignored", slog.String("path", rel), slog.Bool("isDir", isDir))
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isDir {
			return nil
		}
		if !d.Type().IsRegular() {
			w.logger.Debug("Skipping non-regular file", slog.String("path", rel), slog.String("mode", d.Type().String()))
			return nil
		}

		*files = append(*files, rel)
		return nil
	})
}

// visitSymlink applies the SymlinkPolicy to the link at physical path p.
func (w *Walker) visitSymlink(ctx context.Context, p, rel string, files *[]string) error {
	if w.opts.SymlinkPolicy != SymlinkFollow {
		w.logger.Debug("Skipping symbolic link", slog.String("path", rel))
		return nil
	}

	target, err := filepath.EvalSymlinks(p)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve symlink %q: %w", ErrEnumeration, rel, err)
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("%w: cannot stat symlink target %q: %w", ErrEnumeration, rel, err)
	}

	switch {
	case info.Mode().IsRegular():
		if w.ignored(rel, false) {
			return nil
		}
		*files = append(*files, rel)
		return nil
	case info.IsDir():
		if w.ignored(rel, true) {
			return nil
		}
		cycle, err := w.isCycle(rel, info)
		if err != nil {
			return err
		}
		if cycle {
			w.logger.Warn("Not following symlink that points to one of its ancestors", slog.String("path", rel), slog.String("target", target))
			return nil
		}
		w.logger.Debug("Following directory symlink", slog.String("path", rel), slog.String("target", target))
		return w.walk(ctx, target, rel, files)
	default:
		w.logger.Debug("Skipping symlink to non-regular file", slog.String("path", rel))
		return nil
	}
}

// isCycle reports whether target is the same directory as the root or any
// directory on rel's logical path.
func (w *Walker) isCycle(rel string, target fs.FileInfo) (bool, error) {
	ancestor := w.opts.RootPath
	parts := strings.Split(path.Dir(rel), "/")
	for i := -1; i < len(parts); i++ {
		if i >= 0 {
			if parts[i] == "." {
				continue
			}
			ancestor = filepath.Join(ancestor, parts[i])
		}
		info, err := os.Stat(ancestor)
		if err != nil {
			return false, fmt.Errorf("%w: cannot stat %q: %w", ErrEnumeration, ancestor, err)
		}
		if os.SameFile(info, target) {
			return true, nil
		}
	}
	return false, nil
}

func (w *Walker) ignored(rel string, isDir bool) bool {
	if w.matcher == nil {
		return false
	}
	return w.matcher.Match(strings.Split(rel, "/"), isDir)
}
