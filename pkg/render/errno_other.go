//go:build !unix

package render

import (
	"fmt"
	"syscall"
)

// ErrnoText returns the system message for errno.
func ErrnoText(errno int32) string {
	if errno <= 0 {
		return fmt.Sprintf("errno %d", errno)
	}
	return syscall.Errno(errno).Error()
}

// ErrnoName is only known on unix systems.
func ErrnoName(errno int32) string {
	return ""
}
