package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antigravity-dev/nipoppy-go/internal/tracker"
)

// LoadIgnoreList reads a pybids ignore-list file: a JSON array of glob
// patterns (tracker.Match syntax) matched against a BIDS file's path
// relative to the dataset's BIDS root. Patterns are plain globs, not
// substitution templates — the ignore list applies dataset-wide rather
// than to one participant/session.
func LoadIgnoreList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err != nil {
		return nil, fmt.Errorf("runner: parse pybids ignore list %s: %w", path, err)
	}
	return patterns, nil
}

// BuildBIDSIndex walks bidsRoot and writes the relative path of every
// regular file not matched by an ignore pattern to destPath, one per
// line and sorted for determinism. It creates destPath's parent
// directory as needed. Returns the number of indexed files. A missing
// bidsRoot (dataset not yet bidsified) yields an empty index rather
// than an error.
func BuildBIDSIndex(bidsRoot string, ignore []string, destPath string) (int, error) {
	var paths []string
	err := filepath.Walk(bidsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bidsRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchesAny(ignore, rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("runner: walk bids tree: %w", err)
	}
	sort.Strings(paths)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("runner: create bids index parent dir: %w", err)
	}
	body := strings.Join(paths, "\n")
	if len(paths) > 0 {
		body += "\n"
	}
	if err := os.WriteFile(destPath, []byte(body), 0o644); err != nil {
		return 0, fmt.Errorf("runner: write bids index: %w", err)
	}
	return len(paths), nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if tracker.Match(p, rel) {
			return true
		}
	}
	return false
}
