package service

import (
	"errors"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/phoenixchat/phoenixchat/pkg/db"
	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

// ErrChatNotFound is returned when a chat ID does not exist for the user.
var ErrChatNotFound = errors.New("chat not found")

// ChatStore persists chats across both storage schemes: the current
// per-user table and the legacy flat table, plus the device-local buffer.
//
// Ordering contract: listings come back newest-first by timestamp, with the
// server-assigned sequence number breaking ties between identical
// timestamps. Retention keeps the newest `limit` records per user.
type ChatStore struct {
	gdb    *gorm.DB
	buffer *LocalBuffer
	limit  int
	logger *slog.Logger

	seqMu     sync.Mutex
	seqLoaded bool
	seq       int64
}

// NewChatStore wires a store over the database and the local buffer.
// limit is the per-user retention cap; values below 1 fall back to 1.
func NewChatStore(gdb *gorm.DB, buffer *LocalBuffer, limit int) *ChatStore {
	if limit < 1 {
		limit = 1
	}
	return &ChatStore{
		gdb:    gdb,
		buffer: buffer,
		limit:  limit,
		logger: utils.GetLogger(),
	}
}

// Limit returns the per-user retention cap.
func (s *ChatStore) Limit() int { return s.limit }

// Buffer returns the device-local history buffer.
func (s *ChatStore) Buffer() *LocalBuffer { return s.buffer }

// nextSeq hands out monotonic sequence numbers, seeded from the largest
// value already persisted so restarts never go backwards.
func (s *ChatStore) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if !s.seqLoaded {
		var maxSeq int64
		if err := s.gdb.Model(&db.ChatRecord{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			s.logger.Warn("seed sequence counter failed", "error", err)
		}
		s.seq = maxSeq
		s.seqLoaded = true
	}
	s.seq++
	return s.seq
}

// Save upserts a chat record, assigning a sequence number on first save.
// Failures are logged; the error is also returned so callers that must not
// lose data (migration) can react, while the session path ignores it.
func (s *ChatStore) Save(rec *db.ChatRecord) error {
	if rec.Seq == 0 {
		rec.Seq = s.nextSeq()
	}
	if err := s.gdb.Save(rec).Error; err != nil {
		s.logger.Error("save chat failed", "user", rec.UserID, "chat", rec.ID, "error", err)
		return err
	}
	return nil
}

// List returns the user's chats, newest first, capped at the retention
// limit.
func (s *ChatStore) List(userID string) ([]db.ChatRecord, error) {
	return s.ListRecent(userID, s.limit)
}

// ListRecent returns up to n of the user's chats, newest first. n < 1 means
// no cap.
func (s *ChatStore) ListRecent(userID string, n int) ([]db.ChatRecord, error) {
	var chats []db.ChatRecord
	q := s.gdb.Where("user_id = ?", userID).Order("timestamp DESC, seq DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&chats).Error; err != nil {
		s.logger.Error("list chats failed", "user", userID, "error", err)
		return nil, err
	}
	return chats, nil
}

// Get fetches one chat by ID, scoped to the user.
func (s *ChatStore) Get(userID, chatID string) (*db.ChatRecord, error) {
	var rec db.ChatRecord
	err := s.gdb.Where("user_id = ? AND id = ?", userID, chatID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes one chat by ID, scoped to the user.
func (s *ChatStore) Delete(userID, chatID string) error {
	res := s.gdb.Where("user_id = ? AND id = ?", userID, chatID).Delete(&db.ChatRecord{})
	if res.Error != nil {
		s.logger.Error("delete chat failed", "user", userID, "chat", chatID, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteAll removes every chat the user has in the current scheme.
func (s *ChatStore) DeleteAll(userID string) error {
	if err := s.gdb.Where("user_id = ?", userID).Delete(&db.ChatRecord{}).Error; err != nil {
		s.logger.Error("delete all chats failed", "user", userID, "error", err)
		return err
	}
	return nil
}

// EvictOldest trims the user's chats down to the retention cap, deleting the
// oldest overflow. Best effort: eviction failures are logged, never fatal.
func (s *ChatStore) EvictOldest(userID string) {
	var chats []db.ChatRecord
	err := s.gdb.Select("id").Where("user_id = ?", userID).
		Order("timestamp DESC, seq DESC").Offset(s.limit).Find(&chats).Error
	if err != nil {
		s.logger.Warn("eviction scan failed", "user", userID, "error", err)
		return
	}
	for _, c := range chats {
		if err := s.gdb.Where("user_id = ? AND id = ?", userID, c.ID).Delete(&db.ChatRecord{}).Error; err != nil {
			s.logger.Warn("evict chat failed", "user", userID, "chat", c.ID, "error", err)
		}
	}
}

// ---- Legacy scheme ----

// HasLegacy reports whether any legacy rows remain for the user. Rows with
// an empty user_id belong to the pre-account era and count for everyone.
func (s *ChatStore) HasLegacy(userID string) (bool, error) {
	var count int64
	err := s.gdb.Model(&db.LegacyChat{}).
		Where("user_id = ? OR user_id = ''", userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LegacyChats returns the user's legacy rows plus the anonymous ones.
func (s *ChatStore) LegacyChats(userID string) ([]db.LegacyChat, error) {
	var chats []db.LegacyChat
	err := s.gdb.Where("user_id = ? OR user_id = ''", userID).Find(&chats).Error
	if err != nil {
		s.logger.Error("list legacy chats failed", "user", userID, "error", err)
		return nil, err
	}
	return chats, nil
}

// DeleteLegacyChat removes one legacy row after it has been migrated.
func (s *ChatStore) DeleteLegacyChat(chatID string) error {
	return s.gdb.Where("id = ?", chatID).Delete(&db.LegacyChat{}).Error
}
