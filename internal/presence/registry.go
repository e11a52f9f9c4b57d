// Package presence tracks which accounts hold a live session.
package presence

import (
	"sync"

	"go.uber.org/zap"

	"chat-engine/internal/models"
)

// Sink is the delivery end of one live session.
type Sink interface {
	// Deliver hands ev to the session without blocking and reports whether it was accepted.
	Deliver(ev models.ChatEvent) bool
	// Close releases the session. It must be safe to call more than once.
	Close()
}

// Observer is told when an account gains or loses its live session.
type Observer interface {
	Online(accountID string)
	Offline(accountID string)
}

// Registry maps each account to at most one sink.
type Registry struct {
	mu       sync.RWMutex
	sinks    map[string]Sink
	observer Observer
	logger   *zap.Logger
	onChange func(online int)
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer Observer, logger *zap.Logger) *Registry {
	return &Registry{
		sinks:    make(map[string]Sink),
		observer: observer,
		logger:   logger,
	}
}

// OnChange registers fn to receive the online count after every mutation.
func (r *Registry) OnChange(fn func(online int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Connect installs sink for accountID. A previous sink is closed and reported as replaced.
func (r *Registry) Connect(accountID string, sink Sink) (replaced bool) {
	r.mu.Lock()
	old, replaced := r.sinks[accountID]
	r.sinks[accountID] = sink
	online, notify := len(r.sinks), r.onChange
	r.mu.Unlock()

	if replaced && old != sink {
		old.Close()
		r.logger.Debug("session replaced", zap.String("account_id", accountID))
	}
	if notify != nil {
		notify(online)
	}
	if r.observer != nil {
		r.observer.Online(accountID)
	}
	return replaced
}

// Disconnect removes accountID only while sink is still its current entry,
// so a stale session cannot tear down its replacement.
func (r *Registry) Disconnect(accountID string, sink Sink) bool {
	r.mu.Lock()
	cur, ok := r.sinks[accountID]
	if !ok || cur != sink {
		r.mu.Unlock()
		return false
	}
	delete(r.sinks, accountID)
	online, notify := len(r.sinks), r.onChange
	r.mu.Unlock()

	r.afterRemove(accountID, online, notify)
	return true
}

// Evict removes and closes whatever session accountID holds.
func (r *Registry) Evict(accountID string) bool {
	r.mu.Lock()
	cur, ok := r.sinks[accountID]
	if ok {
		delete(r.sinks, accountID)
	}
	online, notify := len(r.sinks), r.onChange
	r.mu.Unlock()

	if !ok {
		return false
	}
	cur.Close()
	r.afterRemove(accountID, online, notify)
	return true
}

func (r *Registry) afterRemove(accountID string, online int, notify func(int)) {
	if notify != nil {
		notify(online)
	}
	if r.observer != nil {
		r.observer.Offline(accountID)
	}
}

// IsOnline reports whether accountID has a live session.
func (r *Registry) IsOnline(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sinks[accountID]
	return ok
}

// Push offers ev to the current sink of accountID. The read lock is held
// across the non-blocking hand-off so the sink cannot be swapped mid-delivery.
func (r *Registry) Push(accountID string, ev models.ChatEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[accountID]
	if !ok {
		return false
	}
	return sink.Deliver(ev)
}

// Online returns the number of live sessions.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
