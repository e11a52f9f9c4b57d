package delivery

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

func stripeOf(key string, n uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % n
}

// accountLocks serializes account deletion against sends that touch the account.
// Sends share the lock; deletion takes it exclusively.
type accountLocks struct {
	stripes [lockStripes]sync.RWMutex
}

// rlockPair read-locks the stripes of a and b in ascending order, once each.
func (l *accountLocks) rlockPair(a, b string) func() {
	i, j := stripeOf(a, lockStripes), stripeOf(b, lockStripes)
	if i > j {
		i, j = j, i
	}
	l.stripes[i].RLock()
	if i != j {
		l.stripes[j].RLock()
	}
	return func() {
		if i != j {
			l.stripes[j].RUnlock()
		}
		l.stripes[i].RUnlock()
	}
}

func (l *accountLocks) lock(id string) func() {
	i := stripeOf(id, lockStripes)
	l.stripes[i].Lock()
	return l.stripes[i].Unlock
}
