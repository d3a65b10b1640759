package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/coordination/storetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (coordination.Store, func(time.Duration)) {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		s := New()
		s.SetClock(clock.Now)
		return s, clock.Advance
	})
}
