//go:build !linux && !darwin

package kvfile

import "os"

// fallocateFile pre-allocates disk blocks to reserve space for a spill file up front.
// On platforms without native fallocate, uses Truncate as a fallback.
// Note: This sets file size but may not reserve actual disk blocks on all filesystems.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}
