package clock

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so reservation TTLs and signature skew checks
// can be exercised deterministically in tests.
type Clock interface {
	Now() time.Time
}

type system struct{}

func System() Clock { return system{} }

func (system) Now() time.Time { return time.Now().UTC() }

// Manual is a settable clock for tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
