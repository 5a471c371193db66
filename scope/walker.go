// Package scope implements the bounded, cycle-safe directory traversal used
// to measure a node's scope before the decision engine runs (C2,
// spec.md §4.2). It is adapted from the file-discovery idiom of
// examples/multi-llm-review/scanner.Scanner.Discover, adding the cycle
// suppression and maxFiles cap the original scanner does not have.
package scope

import (
	"os"
	"path/filepath"
	"sort"
)

// Metrics is the result of walking a node's scope paths.
type Metrics struct {
	FileCount     int
	TotalBytes    int64
	SampledFiles  []string
	ExtensionHist map[string]int
}

// Walk performs a bounded, depth-first traversal of the given root paths,
// up to maxFiles regular files total. Inaccessible entries are silently
// skipped. Order is deterministic given filesystem enumeration order.
func Walk(paths []string, maxFiles int) (Metrics, error) {
	m := Metrics{ExtensionHist: map[string]int{}}
	visited := map[string]bool{}

	for _, root := range paths {
		if m.FileCount >= maxFiles {
			break
		}
		if err := walkOne(root, visited, maxFiles, &m); err != nil {
			return m, err
		}
	}
	sort.Strings(m.SampledFiles)
	return m, nil
}

func walkOne(root string, visited map[string]bool, maxFiles int, m *Metrics) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil // unresolvable path: skip silently
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil // inaccessible: skip silently
	}

	if info.Mode()&os.ModeSymlink != 0 {
		// Resolve once; cycle suppression still applies to the resolved
		// target so a symlink loop cannot cause unbounded recursion.
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil
		}
		abs = resolved
		info, err = os.Stat(abs)
		if err != nil {
			return nil
		}
	}

	if visited[abs] {
		return nil
	}
	visited[abs] = true

	if info.IsDir() {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil // inaccessible: skip silently
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			if m.FileCount >= maxFiles {
				return nil
			}
			if err := walkOne(filepath.Join(abs, name), visited, maxFiles, m); err != nil {
				return err
			}
		}
		return nil
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	m.FileCount++
	m.TotalBytes += info.Size()
	ext := filepath.Ext(abs)
	if ext == "" {
		ext = "<none>"
	}
	m.ExtensionHist[ext]++
	if len(m.SampledFiles) < 200 {
		m.SampledFiles = append(m.SampledFiles, abs)
	}
	return nil
}

// Enumerate lists the immediate children of a path: subdirectories and
// regular files, both sorted, used by the split planner (C4) to decide
// between a per-directory or per-file-group split.
func Enumerate(path string) (dirs []string, files []string, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, nil // inaccessible: treated as empty, never fatal
	}
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if e.IsDir() {
			dirs = append(dirs, full)
		} else if e.Type().IsRegular() {
			files = append(files, full)
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}
