//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// openLockFile opens path for flock. Shared locks reuse an existing file
// read-only, so readers work where the directory is not writable.
func openLockFile(path string, exclusive bool) (*os.File, error) {
	if !exclusive {
		f, err := os.Open(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return f, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
}

// lockFile takes an advisory flock on path, creating it if needed. The
// returned func releases the lock and closes the file.
func lockFile(path string, exclusive bool) (func(), error) {
	f, err := openLockFile(path, exclusive)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
