// Package idgen provides the identifier strategies used when creating items.
package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func returns a fresh identifier on each call. Implementations must be safe
// for concurrent use.
type Func func() string

// UUID returns random version 4 UUIDs.
func UUID() Func {
	return uuid.NewString
}

// Timestamp issues millisecond Unix timestamps rendered as decimal strings.
// Ids are strictly increasing within a process: when the clock has not moved
// past the last issued value the next millisecond is used instead.
type Timestamp struct {
	mu   sync.Mutex
	last int64
	Now  func() time.Time
}

func (t *Timestamp) Next() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	ms := now().UnixMilli()
	if ms <= t.last {
		ms = t.last + 1
	}
	t.last = ms
	return strconv.FormatInt(ms, 10)
}

// New returns the generator for a strategy name ("uuid" or "timestamp").
func New(strategy string) (Func, error) {
	switch strategy {
	case "uuid", "":
		return UUID(), nil
	case "timestamp":
		return (&Timestamp{}).Next, nil
	default:
		return nil, fmt.Errorf("unknown id strategy: %q (supported: uuid, timestamp)", strategy)
	}
}
