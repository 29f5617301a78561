//go:build !windows

package fileutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeSpace returns the free bytes available on the filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
