//go:build windows

package fileutil

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// FreeSpace returns the free bytes available on the volume holding path.
func FreeSpace(path string) (uint64, error) {
	pointer, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("encode path: %w", err)
	}
	var freeToCaller, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(pointer, &freeToCaller, &total, &free); err != nil {
		return 0, fmt.Errorf("disk free space %s: %w", path, err)
	}
	return freeToCaller, nil
}
