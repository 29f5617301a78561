// Package scan enumerates candidate video files under the swept root.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one file that passed the extension and size filters.
type Entry struct {
	Path string
	Size int64
}

// Candidates walks root recursively and returns files whose extension is in
// the set and whose size meets the floor, ordered by path for a stable sweep
// order across runs. A missing root is fatal to the run.
func Candidates(root string, extensions map[string]struct{}, minSize int64) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("root directory %q does not exist", root)
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it rather than aborting the sweep.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := extensions[ext]; !ok {
			return nil
		}
		fileInfo, err := d.Info()
		if err != nil {
			return nil
		}
		// Placeholder files report their full remote size, so the floor
		// applies uniformly to local and cloud-resident files.
		if fileInfo.Size() < minSize {
			return nil
		}
		entries = append(entries, Entry{Path: path, Size: fileInfo.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk root: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
