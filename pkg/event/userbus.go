package event

import (
	"log/slog"
	"sync"

	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

// UserChangeFunc receives identity transitions. oldUserID is empty when no
// user was known before; newUserID is empty on logout.
type UserChangeFunc func(oldUserID, newUserID string)

// UserBus broadcasts authenticated-user identity changes.
//
// Semantics:
//   - Subscribers are notified in subscription order.
//   - A new subscriber receives the current identity asynchronously, so the
//     subscribing call never re-enters the caller's own locks.
//   - Publishing the identity already held is a no-op once an identity is
//     known; the very first publish is always delivered, even of the empty
//     identity, so subscribers learn the signed-out state.
type UserBus struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers []userSub
	current     string
	known       bool
	logger      *slog.Logger
}

type userSub struct {
	id uint64
	fn UserChangeFunc
}

// NewUserBus creates an empty bus with no known identity.
func NewUserBus() *UserBus {
	return &UserBus{logger: utils.GetLogger()}
}

// Subscribe registers fn and returns an unsubscribe function. If an identity
// is already known, fn is invoked once from a fresh goroutine with the
// current value (oldUserID empty).
func (b *UserBus) Subscribe(fn UserChangeFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, userSub{id: id, fn: fn})
	deliver := b.known
	current := b.current
	b.mu.Unlock()

	if deliver {
		go b.invoke(fn, "", current)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Publish records newUserID as the current identity and notifies all
// subscribers with the previous one. Duplicate publishes are suppressed.
func (b *UserBus) Publish(newUserID string) {
	b.mu.Lock()
	if b.known && b.current == newUserID {
		b.mu.Unlock()
		return
	}
	old := b.current
	b.current = newUserID
	b.known = true
	subs := make([]userSub, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	b.logger.Info("user changed", "old_user", old, "new_user", newUserID)
	for _, s := range subs {
		b.invoke(s.fn, old, newUserID)
	}
}

// Current returns the current identity and whether any identity has been
// published yet.
func (b *UserBus) Current() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.known
}

// Reset clears the known identity without notifying subscribers. Used by
// tests and by shutdown paths.
func (b *UserBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = ""
	b.known = false
}

func (b *UserBus) invoke(fn UserChangeFunc, oldID, newID string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("user change subscriber panicked", "panic", r)
		}
	}()
	fn(oldID, newID)
}

// ---- Default bus ----

var defaultBus *UserBus
var defaultBusOnce sync.Once

// Default returns the process-wide user bus.
func Default() *UserBus {
	defaultBusOnce.Do(func() {
		defaultBus = NewUserBus()
	})
	return defaultBus
}
