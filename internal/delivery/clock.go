package delivery

import (
	"sync"
	"time"
)

const clockStripes = 64

// clockStripe keeps one high-water mark shared by every conversation hashed
// onto it, so memory stays fixed no matter how many conversations exist.
type clockStripe struct {
	mu   sync.Mutex
	last time.Time
}

// conversationClock issues strictly increasing millisecond timestamps per
// conversation. Holding a stripe also orders the store write that uses the
// timestamp, so storage order matches issue order.
type conversationClock struct {
	stripes [clockStripes]clockStripe
	now     func() time.Time
}

func newConversationClock(now func() time.Time) *conversationClock {
	return &conversationClock{now: now}
}

func conversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// tick is a locked conversation slot; commit records the timestamp once the write succeeded.
type tick struct {
	At     time.Time
	stripe *clockStripe
}

func (c *conversationClock) acquire(a, b string) *tick {
	s := &c.stripes[stripeOf(conversationKey(a, b), clockStripes)]
	s.mu.Lock()

	at := c.now().UTC().Truncate(time.Millisecond)
	if !at.After(s.last) {
		at = s.last.Add(time.Millisecond)
	}
	return &tick{At: at, stripe: s}
}

func (t *tick) commit() {
	t.stripe.last = t.At
}

func (t *tick) release() {
	t.stripe.mu.Unlock()
}
