// Package fsapi declares the virtual filesystem capability interface
// invoked from WASIX host imports (spec.md §6.1): open, read, write, close
// and stat, plus directory listing. The runtime treats every
// implementation as a black box; no backend lives here, since the
// POSIX/WASI syscall surface beyond what demonstrates store-borrow safety
// under context switches is an explicit non-goal.
package fsapi

import (
	"io/fs"
	"syscall"
)

// Dirent is one entry read from a directory, trimmed to what a WASIX
// readdir host import surfaces.
type Dirent struct {
	Name string
	Type fs.FileMode
}

// File is a single open file or directory handle.
type File interface {
	Read(buf []byte) (n int, errno syscall.Errno)
	Write(buf []byte) (n int, errno syscall.Errno)
	Stat() (fs.FileInfo, syscall.Errno)

	// ReadDir lists the immediate children of a directory handle.
	// Implementations return syscall.ENOTDIR for a non-directory handle.
	ReadDir() ([]Dirent, syscall.Errno)

	Close() syscall.Errno
}

// FS opens files and directories by path: the "open" half of spec.md
// §6.1's {open, read, write, close, stat} capability interface; the rest
// are methods on the File it returns.
type FS interface {
	Open(path string, flag int, perm fs.FileMode) (File, syscall.Errno)
}
