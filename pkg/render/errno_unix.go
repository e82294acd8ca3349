//go:build unix

package render

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

// ErrnoText returns the system message for errno, capitalized the way
// strerror prints it.
func ErrnoText(errno int32) string {
	if errno <= 0 {
		return fmt.Sprintf("errno %d", errno)
	}
	return capitalize(unix.Errno(errno).Error())
}

// ErrnoName returns the symbolic name of errno, such as ECONNRESET, or an
// empty string when it is unknown.
func ErrnoName(errno int32) string {
	if errno <= 0 {
		return ""
	}
	return unix.ErrnoName(unix.Errno(errno))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
