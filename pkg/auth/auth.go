// Package auth abstracts the source of the authenticated user identity.
package auth

import (
	"context"
	"sync"

	"github.com/phoenixchat/phoenixchat/pkg/event"
)

// Provider exposes the current user identity and change notifications.
// An empty user ID means signed out.
type Provider interface {
	// CurrentUserID returns the identity known right now.
	CurrentUserID(ctx context.Context) (string, error)
	// OnChange registers a callback fired on every identity change.
	// Returns an unsubscribe function.
	OnChange(fn func(userID string)) func()
}

// Bind forwards identity changes from a provider onto the user bus,
// seeding the bus with the provider's current identity first. Returns an
// unbind function.
func Bind(ctx context.Context, p Provider, bus *event.UserBus) (func(), error) {
	current, err := p.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	bus.Publish(current)
	return p.OnChange(func(userID string) {
		bus.Publish(userID)
	}), nil
}

// StaticProvider is a Provider whose identity is set programmatically.
// It backs the HTTP session endpoints and tests.
type StaticProvider struct {
	mu        sync.Mutex
	userID    string
	nextID    uint64
	callbacks map[uint64]func(string)
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{callbacks: make(map[uint64]func(string))}
}

func (p *StaticProvider) CurrentUserID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID, nil
}

func (p *StaticProvider) OnChange(fn func(userID string)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.callbacks[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.callbacks, id)
		p.mu.Unlock()
	}
}

// SetUser changes the identity and notifies callbacks. Setting the same
// identity again still notifies; deduplication belongs to the bus.
func (p *StaticProvider) SetUser(userID string) {
	p.mu.Lock()
	p.userID = userID
	cbs := make([]func(string), 0, len(p.callbacks))
	for _, fn := range p.callbacks {
		cbs = append(cbs, fn)
	}
	p.mu.Unlock()
	for _, fn := range cbs {
		fn(userID)
	}
}
