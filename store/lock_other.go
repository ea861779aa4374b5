//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package store

// lockFile is a no-op where flock is unavailable; writers in this process
// are still serialized by the store's mutex.
func lockFile(path string, exclusive bool) (func(), error) {
	return func() {}, nil
}
