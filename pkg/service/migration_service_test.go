package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/phoenixchat/phoenixchat/pkg/db"
)

type loadedCapture struct {
	mu    sync.Mutex
	calls []struct {
		userID string
		chats  []db.ChatRecord
	}
}

func (lc *loadedCapture) fn(userID string, chats []db.ChatRecord) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.calls = append(lc.calls, struct {
		userID string
		chats  []db.ChatRecord
	}{userID, chats})
}

func (lc *loadedCapture) last(t *testing.T) (string, []db.ChatRecord) {
	t.Helper()
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if len(lc.calls) == 0 {
		t.Fatal("no chat list was delivered")
	}
	last := lc.calls[len(lc.calls)-1]
	return last.userID, last.chats
}

func TestMigration_MovesBufferIntoPerUserScheme(t *testing.T) {
	store := newTestStore(t, 5)
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b1", Title: "from buffer", Messages: db.ChatMessages{{Role: db.RoleUser, Content: "hi"}}, Timestamp: "2024-01-01T00:00:00Z"},
		{ID: "b2", Title: "also buffered", Timestamp: "2024-01-02T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)

	m.HandleUserChange("", "alice")

	if got := m.Status("alice"); got != StatusComplete {
		t.Fatalf("Status() = %s, want %s", got, StatusComplete)
	}

	chats, err := store.List("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("migrated %d chats, want 2", len(chats))
	}
	for _, c := range chats {
		if c.MigratedAt == "" {
			t.Fatalf("chat %s has no migration stamp", c.ID)
		}
	}
	// Newest first: b2 has the later timestamp.
	if chats[0].ID != "b2" {
		t.Fatalf("list order = [%s, %s], want b2 first", chats[0].ID, chats[1].ID)
	}

	if store.Buffer().HasData() {
		t.Fatal("buffer should be cleared after a full migration")
	}

	userID, delivered := loaded.last(t)
	if userID != "alice" || len(delivered) != 2 {
		t.Fatalf("delivered %d chats for %q, want 2 for alice", len(delivered), userID)
	}
}

func TestMigration_MovesLegacyTableRowsAndDeletesThem(t *testing.T) {
	store := newTestStore(t, 5)
	store.gdb.Create(&db.LegacyChat{ID: "l1", UserID: "alice", Title: "mine", Timestamp: "2024-01-01T00:00:00Z"})
	store.gdb.Create(&db.LegacyChat{ID: "l2", Title: "anonymous", Timestamp: "2024-01-02T00:00:00Z"})
	store.gdb.Create(&db.LegacyChat{ID: "l3", UserID: "bob", Title: "not mine"})

	m := NewMigrationService(store, nil)
	m.HandleUserChange("", "alice")

	chats, err := store.List("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("migrated %d chats, want 2", len(chats))
	}

	remaining, err := store.LegacyChats("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != "l3" {
		t.Fatalf("legacy table after migration = %+v, want only bob's row", remaining)
	}
}

func TestMigration_ReplayIsIdempotent(t *testing.T) {
	store := newTestStore(t, 5)
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b1", Title: "buffered", Timestamp: "2024-01-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	m := NewMigrationService(store, nil)
	m.HandleUserChange("", "alice")

	// Simulate a crash that left the buffer unclear: restore it and rerun.
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b1", Title: "buffered", Timestamp: "2024-01-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}
	m2 := NewMigrationService(store, nil)
	m2.HandleUserChange("", "alice")

	chats, err := store.List("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("replay duplicated records: %d chats, want 1", len(chats))
	}
}

func TestMigration_MergesWithExistingAndEnforcesCap(t *testing.T) {
	store := newTestStore(t, 3)
	for i := 0; i < 3; i++ {
		store.Save(&db.ChatRecord{
			ID:        fmt.Sprintf("e%d", i),
			UserID:    "alice",
			Timestamp: fmt.Sprintf("2024-06-0%dT00:00:00Z", i+1),
		})
	}
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b-new", Title: "newest", Timestamp: "2024-07-01T00:00:00Z"},
		{ID: "b-old", Title: "ancient", Timestamp: "2023-01-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)
	m.HandleUserChange("", "alice")

	_, delivered := loaded.last(t)
	if len(delivered) != 3 {
		t.Fatalf("delivered %d chats, want the cap of 3", len(delivered))
	}
	if delivered[0].ID != "b-new" {
		t.Fatalf("newest migrated chat should lead the list, got %s", delivered[0].ID)
	}
	for _, c := range delivered {
		if c.ID == "b-old" {
			t.Fatal("ancient migrated chat should have fallen off the cap")
		}
	}

	// Storage was trimmed too, not just the delivered view.
	all, _ := store.ListRecent("alice", 0)
	if len(all) != 3 {
		t.Fatalf("store retains %d chats, want 3", len(all))
	}
}

func TestMigration_BusyGuardDegradesToPlainList(t *testing.T) {
	store := newTestStore(t, 5)
	store.Save(&db.ChatRecord{ID: "existing", UserID: "bob", Timestamp: "2024-01-01T00:00:00Z"})
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b1", Title: "waiting", Timestamp: "2024-01-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)

	if !m.tryBegin("alice") {
		t.Fatal("could not claim the migration slot")
	}
	m.HandleUserChange("alice", "bob")
	m.finish("alice")

	// Bob got his existing list without any migration work.
	userID, delivered := loaded.last(t)
	if userID != "bob" || len(delivered) != 1 || delivered[0].ID != "existing" {
		t.Fatalf("delivered %+v for %q, want bob's existing chat", delivered, userID)
	}
	if !store.Buffer().HasData() {
		t.Fatal("buffer should be untouched while the guard is held")
	}
	if got := m.Status("bob"); got != StatusIdle {
		t.Fatalf("Status(bob) = %s, want %s", got, StatusIdle)
	}
}

func TestMigration_PartialFailureKeepsSources(t *testing.T) {
	store := newTestStore(t, 5)
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b1", Title: "stuck", Timestamp: "2024-01-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	// Make every save fail.
	if err := store.gdb.Migrator().DropTable(&db.ChatRecord{}); err != nil {
		t.Fatal(err)
	}

	m := NewMigrationService(store, nil)
	m.HandleUserChange("", "alice")

	if got := m.Status("alice"); got != StatusFailed {
		t.Fatalf("Status() = %s, want %s", got, StatusFailed)
	}
	remnant, err := store.Buffer().Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(remnant) != 1 || remnant[0].ID != "b1" {
		t.Fatalf("buffer remnant = %+v, want the unmigrated chat kept for retry", remnant)
	}
}

func TestMigration_PlainLoadFailureDeliversEmptyList(t *testing.T) {
	store := newTestStore(t, 5)
	if err := store.gdb.Migrator().DropTable(&db.ChatRecord{}); err != nil {
		t.Fatal(err)
	}

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)
	m.HandleUserChange("", "alice")

	// Storage being unreachable must still resolve the login with an empty
	// list, never leave the consumer waiting.
	userID, delivered := loaded.last(t)
	if userID != "alice" || len(delivered) != 0 {
		t.Fatalf("delivered %d chats for %q, want an empty list for alice", len(delivered), userID)
	}
}

func TestMigration_BusyGuardListFailureStillDelivers(t *testing.T) {
	store := newTestStore(t, 5)
	if err := store.Buffer().Rewrite([]db.LegacyChat{
		{ID: "b1", Title: "waiting", Timestamp: "2024-01-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.gdb.Migrator().DropTable(&db.ChatRecord{}); err != nil {
		t.Fatal(err)
	}

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)

	if !m.tryBegin("alice") {
		t.Fatal("could not claim the migration slot")
	}
	m.HandleUserChange("alice", "bob")
	m.finish("alice")

	userID, delivered := loaded.last(t)
	if userID != "bob" || len(delivered) != 0 {
		t.Fatalf("delivered %d chats for %q, want an empty list for bob", len(delivered), userID)
	}
}

func TestMigration_LogoutEmitsEmptyList(t *testing.T) {
	store := newTestStore(t, 5)
	if err := store.Buffer().Rewrite([]db.LegacyChat{{ID: "b1"}}); err != nil {
		t.Fatal(err)
	}

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)
	m.HandleUserChange("alice", "")

	userID, delivered := loaded.last(t)
	if userID != "" || len(delivered) != 0 {
		t.Fatalf("logout delivered %d chats for %q, want an empty list for the signed-out identity", len(delivered), userID)
	}
	if !store.Buffer().HasData() {
		t.Fatal("logout should not touch the buffer")
	}
}

func TestMigration_NoLegacyDataSkipsMigration(t *testing.T) {
	store := newTestStore(t, 5)
	store.Save(&db.ChatRecord{ID: "existing", UserID: "alice", Timestamp: "2024-01-01T00:00:00Z"})

	var loaded loadedCapture
	m := NewMigrationService(store, loaded.fn)
	m.HandleUserChange("", "alice")

	userID, delivered := loaded.last(t)
	if userID != "alice" || len(delivered) != 1 || delivered[0].ID != "existing" {
		t.Fatalf("delivered %+v for %q, want the plain list", delivered, userID)
	}
	// No migration ran, so the status never left idle.
	if got := m.Status("alice"); got != StatusIdle {
		t.Fatalf("Status() = %s, want %s", got, StatusIdle)
	}
}
