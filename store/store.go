// Package store defines the backing store interface and implementations.
package store

import "github.com/stevemurr/flatfile-items/record"

// Store persists the whole item collection. Every call re-reads the backing
// storage; nothing is cached between calls.
type Store interface {
	// View loads the collection and passes it to fn. fn must not retain or
	// modify the collection.
	View(fn func(record.Collection) error) error

	// Update loads the collection, passes it to fn and persists the returned
	// collection, all under the store's writer lock. If fn returns an error
	// nothing is written and that error is returned unchanged.
	Update(fn func(record.Collection) (record.Collection, error)) error
}

// Health describes the state of the backing storage as seen by the last load.
type Health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Backup string `json:"backup,omitempty"`
}

// HealthChecker is implemented by stores that can detect degraded storage.
type HealthChecker interface {
	Health() Health
}
