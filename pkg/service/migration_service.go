package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phoenixchat/phoenixchat/pkg/db"
	"github.com/phoenixchat/phoenixchat/pkg/event"
	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

// MigrationStatus is the migration lifecycle state for one user.
type MigrationStatus string

const (
	StatusIdle       MigrationStatus = "idle"
	StatusInProgress MigrationStatus = "in_progress"
	StatusComplete   MigrationStatus = "complete"
	StatusFailed     MigrationStatus = "failed"
)

// mergeFetchFactor bounds the pre-merge fetch: we never need more existing
// records than could survive the cap, but tie-heavy data benefits from
// headroom.
const mergeFetchFactor = 4

// ChatsLoadedFunc receives the user's chat list once migration (or the
// plain load that replaces it) finishes.
type ChatsLoadedFunc func(userID string, chats []db.ChatRecord)

// MigrationService moves legacy-scheme chats into the per-user scheme on
// login, merges them with whatever the user already has, and republishes
// the capped list.
//
// Concurrency contract: at most one migration runs at a time. A login that
// arrives while another user's migration is in flight does not queue; it
// degrades to a plain list load, and the legacy data is picked up on that
// user's next login. Migration is at-least-once with idempotent moves
// (records keep their IDs, saves are upserts), so a crash mid-run is
// repaired by the retry.
type MigrationService struct {
	store    *ChatStore
	onLoaded ChatsLoadedFunc
	logger   *slog.Logger

	mu           sync.Mutex
	inFlight     bool
	inFlightUser string
	statuses     map[string]MigrationStatus
}

// NewMigrationService builds the coordinator. onLoaded may be nil.
func NewMigrationService(store *ChatStore, onLoaded ChatsLoadedFunc) *MigrationService {
	return &MigrationService{
		store:    store,
		onLoaded: onLoaded,
		logger:   utils.GetLogger(),
		statuses: make(map[string]MigrationStatus),
	}
}

// Bind subscribes the coordinator to identity changes on the bus. Migration
// runs off the publisher's goroutine so a login request is not held open for
// the duration of the move. Returns the unsubscribe function.
func (m *MigrationService) Bind(bus *event.UserBus) func() {
	return bus.Subscribe(func(oldUserID, newUserID string) {
		go m.HandleUserChange(oldUserID, newUserID)
	})
}

// Status returns the last known migration status for the user.
func (m *MigrationService) Status(userID string) MigrationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.statuses[userID]; ok {
		return st
	}
	return StatusIdle
}

// HandleUserChange reacts to an identity transition. Logout emits an empty
// list with no store access; a login without legacy data loads the plain
// list; a login with legacy data triggers at most one migration pass.
func (m *MigrationService) HandleUserChange(oldUserID, newUserID string) {
	if newUserID == "" {
		m.logger.Debug("user signed out", "old_user", oldUserID)
		m.deliver("", nil)
		return
	}

	if !m.needsMigration(newUserID) {
		m.deliverPlainList(newUserID)
		return
	}

	if !m.tryBegin(newUserID) {
		// Another migration holds the guard. Serve what already exists;
		// this user's legacy data waits for their next login.
		m.logger.Info("migration busy, serving existing chats", "user", newUserID)
		m.deliverPlainList(newUserID)
		return
	}
	defer m.finish(newUserID)

	m.setStatus(newUserID, StatusInProgress)
	chats, err := m.migrate(newUserID)
	if err != nil {
		m.logger.Error("migration failed", "user", newUserID, "error", err)
		m.setStatus(newUserID, StatusFailed)
	} else {
		m.setStatus(newUserID, StatusComplete)
	}
	m.deliver(newUserID, chats)
}

// deliverPlainList serves the user's stored list without any migration
// work. A storage failure degrades to an empty list; the callback always
// fires so the consumer is never left waiting.
func (m *MigrationService) deliverPlainList(userID string) {
	chats, err := m.store.List(userID)
	if err != nil {
		chats = nil
	}
	m.deliver(userID, chats)
}

// needsMigration reports whether any legacy source holds data for userID.
func (m *MigrationService) needsMigration(userID string) bool {
	if m.store.Buffer().HasData() {
		return true
	}
	has, err := m.store.HasLegacy(userID)
	return err == nil && has
}

// tryBegin claims the single migration slot. Re-entry for the user already
// holding the slot is also refused.
func (m *MigrationService) tryBegin(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return false
	}
	m.inFlight = true
	m.inFlightUser = userID
	return true
}

func (m *MigrationService) finish(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlightUser == userID {
		m.inFlight = false
		m.inFlightUser = ""
	}
}

func (m *MigrationService) setStatus(userID string, st MigrationStatus) {
	m.mu.Lock()
	m.statuses[userID] = st
	m.mu.Unlock()
	event.Emit(event.MigrationStatusChanged{UserID: userID, Status: string(st)})
}

func (m *MigrationService) deliver(userID string, chats []db.ChatRecord) {
	event.Emit(event.ChatsLoaded{UserID: userID, Count: len(chats)})
	if m.onLoaded != nil {
		m.onLoaded(userID, chats)
	}
}

// migrate moves legacy data for userID into the per-user scheme and returns
// the merged, capped chat list. On partial failure it returns the best list
// it can along with an error; unmigrated sources are left in place so the
// next login retries them.
func (m *MigrationService) migrate(userID string) ([]db.ChatRecord, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var failures int

	// Legacy table rows: move, then delete the source. Delete only after a
	// successful save so a crash between the two replays harmlessly.
	legacyRows, err := m.store.LegacyChats(userID)
	if err != nil {
		failures++
	}
	for _, lc := range legacyRows {
		rec := legacyToRecord(userID, lc, now)
		if err := m.store.Save(rec); err != nil {
			failures++
			continue
		}
		if err := m.store.DeleteLegacyChat(lc.ID); err != nil {
			m.logger.Warn("migrated chat not removed from legacy table", "chat", lc.ID, "error", err)
		}
	}

	// Device-local buffer: move what we can, rewrite the remnant.
	bufferChats, err := m.store.Buffer().Read()
	if err != nil {
		m.logger.Error("history buffer unreadable", "error", err)
		failures++
	}
	if len(bufferChats) > 0 {
		var remnant []db.LegacyChat
		for _, lc := range bufferChats {
			rec := legacyToRecord(userID, lc, now)
			if err := m.store.Save(rec); err != nil {
				failures++
				remnant = append(remnant, lc)
			}
		}
		var rewriteErr error
		if len(remnant) == 0 {
			rewriteErr = m.store.Buffer().Clear()
		} else {
			rewriteErr = m.store.Buffer().Rewrite(remnant)
		}
		if rewriteErr != nil {
			m.logger.Warn("history buffer rewrite failed", "error", rewriteErr)
		}
	}

	merged, listErr := m.loadMerged(userID)
	if listErr != nil {
		failures++
	}
	m.store.EvictOldest(userID)

	if failures > 0 {
		return merged, fmt.Errorf("migration for %s completed with %d failure(s)", userID, failures)
	}
	m.logger.Info("migration complete", "user", userID, "chats", len(merged))
	return merged, nil
}

// loadMerged fetches a bounded slice of the user's records, orders them
// newest first, and truncates to the retention cap.
func (m *MigrationService) loadMerged(userID string) ([]db.ChatRecord, error) {
	limit := m.store.Limit()
	chats, err := m.store.ListRecent(userID, limit*mergeFetchFactor)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		ti, tj := chats[i].EffectiveTime(), chats[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return chats[i].Seq > chats[j].Seq
	})
	if len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

// legacyToRecord converts a legacy chat into the per-user scheme, keeping
// its ID (so replays upsert instead of duplicating) and its timestamp, and
// stamping the migration instant.
func legacyToRecord(userID string, lc db.LegacyChat, now string) *db.ChatRecord {
	id := lc.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := lc.Timestamp
	if ts == "" {
		ts = now
	}
	return &db.ChatRecord{
		ID:         id,
		UserID:     userID,
		Title:      lc.Title,
		Messages:   lc.Messages,
		Timestamp:  ts,
		MigratedAt: now,
	}
}
