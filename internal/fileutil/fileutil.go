// Package fileutil provides the filesystem helpers the transcode executor
// relies on.
package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Promote moves temp into place at final. Rename covers the sibling-path
// case; a cross-device rename falls back to copy-then-remove.
func Promote(temp, final string) error {
	if err := os.Rename(temp, final); err == nil {
		return nil
	}
	if err := CopyFile(temp, final); err != nil {
		return fmt.Errorf("promote %s: %w", final, err)
	}
	return os.Remove(temp)
}

// TempArtifactMarker is the suffix shared by every in-progress transcode
// artifact, so stale leftovers from crashed runs are recognizable.
const TempArtifactMarker = ".sqz-tmp"

// TempArtifactPath derives the working path for an in-progress transcode of
// input, unique per run so a dead run's leftovers never collide.
func TempArtifactPath(input, runID string) string {
	dir := filepath.Dir(input)
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, "."+base+"-"+runID+TempArtifactMarker)
}

// SweepStaleArtifacts removes leftover temp artifacts under root belonging to
// previous runs. Returns the number removed.
func SweepStaleArtifacts(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), TempArtifactMarker) {
			if removeErr := os.Remove(path); removeErr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep stale artifacts: %w", err)
	}
	return removed, nil
}
