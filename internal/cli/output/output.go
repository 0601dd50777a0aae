// Package output renders the final path-to-digest mapping of a run.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format selects how a Manifest is written.
type Format string

// Constants representing the supported output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats lists every accepted Format, default first.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatTOML}

// ErrUnknownFormat indicates a Format outside Formats.
var ErrUnknownFormat = errors.New("unknown output format")

// Entry is one hashed file.
type Entry struct {
	Path string `json:"path" yaml:"path" toml:"path"`
	Hash string `json:"hash" yaml:"hash" toml:"hash"`
}

// Manifest is the structured form of a Result, with entries sorted by path.
type Manifest struct {
	Root      string  `json:"root" yaml:"root" toml:"root"`
	Algorithm string  `json:"algorithm" yaml:"algorithm" toml:"algorithm"`
	FileCount int     `json:"fileCount" yaml:"fileCount" toml:"fileCount"`
	Files     []Entry `json:"files" yaml:"files" toml:"files"`
}

// NewManifest builds a Manifest from a Result mapping.
func NewManifest(root, algorithm string, hashes map[string]string) Manifest {
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]Entry, 0, len(paths))
	for _, p := range paths {
		files = append(files, Entry{Path: p, Hash: hashes[p]})
	}
	return Manifest{Root: root, Algorithm: algorithm, FileCount: len(files), Files: files}
}

// ParseFormat returns the Format named by s, case-insensitively. An empty
// string selects FormatText.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatText, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q (allowed: %v)", ErrUnknownFormat, s, Formats)
}

// Write renders m to w in the requested format.
//
// FormatText prints one "<hash>  <path>" line per file, the layout of sha256sum
// and b3sum, so the output can be diffed or fed to other tools.
func Write(w io.Writer, format Format, m Manifest) error {
	switch format {
	case FormatText, "":
		for _, e := range m.Files {
			if _, err := fmt.Fprintf(w, "%s  %s\n", e.Hash, e.Path); err != nil {
				return fmt.Errorf("failed to write text output: %w", err)
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to write JSON output: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to write YAML output: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush YAML output: %w", err)
		}
		return nil
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(m); err != nil {
			return fmt.Errorf("failed to write TOML output: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
