package service

import "sync"

// cardLocks serializes work per card id. Entries are dropped once no
// goroutine holds or waits on them.
type cardLocks struct {
	mu    sync.Mutex
	locks map[string]*cardLock
}

type cardLock struct {
	sync.Mutex
	refs int
}

func newCardLocks() *cardLocks {
	return &cardLocks{locks: make(map[string]*cardLock)}
}

func (c *cardLocks) Lock(cardID string) (unlock func()) {
	c.mu.Lock()
	l, ok := c.locks[cardID]
	if !ok {
		l = &cardLock{}
		c.locks[cardID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, cardID)
		}
		c.mu.Unlock()
	}
}

func (c *cardLocks) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
