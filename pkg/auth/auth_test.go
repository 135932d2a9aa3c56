package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/phoenixchat/phoenixchat/pkg/event"
)

func TestBind_SeedsBusWithCurrentIdentity(t *testing.T) {
	p := NewStaticProvider()
	p.SetUser("alice")
	bus := event.NewUserBus()

	unbind, err := Bind(context.Background(), p, bus)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer unbind()

	id, known := bus.Current()
	if !known || id != "alice" {
		t.Fatalf("bus.Current() = %q, %v; want alice, true", id, known)
	}
}

func TestBind_ForwardsChanges(t *testing.T) {
	p := NewStaticProvider()
	bus := event.NewUserBus()

	var mu sync.Mutex
	var seen []string
	bus.Subscribe(func(oldID, newID string) {
		mu.Lock()
		seen = append(seen, newID)
		mu.Unlock()
	})

	unbind, err := Bind(context.Background(), p, bus)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer unbind()

	p.SetUser("alice")
	p.SetUser("bob")
	// Repeat logins collapse at the bus.
	p.SetUser("bob")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"", "alice", "bob"}
	if len(seen) != len(want) {
		t.Fatalf("bus saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("bus saw %v, want %v", seen, want)
		}
	}
}

func TestBind_UnbindStopsForwarding(t *testing.T) {
	p := NewStaticProvider()
	bus := event.NewUserBus()

	unbind, err := Bind(context.Background(), p, bus)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	unbind()

	p.SetUser("alice")
	if id, _ := bus.Current(); id == "alice" {
		t.Fatal("change forwarded after unbind")
	}
}
