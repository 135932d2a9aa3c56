package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phoenixchat/phoenixchat/pkg/ai"
	"github.com/phoenixchat/phoenixchat/pkg/db"
	"github.com/phoenixchat/phoenixchat/pkg/event"
	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

// fallbackReply is shown whenever generation fails. Composition never
// surfaces an error to the conversation; it degrades to this reply.
const fallbackReply = "Sorry, there was an error processing your request. Please try again."

// titleRuneLimit caps archived chat titles derived from the first prompt.
const titleRuneLimit = 30

// ChatSession holds the active conversation for the current user: the
// unarchived message buffer, an optional pending image, and the hydrated
// history list.
//
// Composition is last-write-wins rather than serialized: the model call runs
// outside the session lock, so two overlapping Compose calls both complete
// and both land in the buffer in completion order.
type ChatSession struct {
	store  *ChatStore
	gen    ai.Generator
	logger *slog.Logger

	mu           sync.Mutex
	userID       string
	activeID     string
	active       db.ChatMessages
	pendingImage *ai.Image
	history      []db.ChatRecord
	lastError    string
}

// NewChatSession wires a session over the store and generator.
func NewChatSession(store *ChatStore, gen ai.Generator) *ChatSession {
	return &ChatSession{
		store:  store,
		gen:    gen,
		logger: utils.GetLogger(),
	}
}

// BindUser resets the session whenever the identity changes: the active
// buffer, pending image, hydrated history, and the model's conversation
// context all belong to the previous user and are dropped.
func (s *ChatSession) BindUser(bus *event.UserBus) func() {
	return bus.Subscribe(func(oldUserID, newUserID string) {
		s.mu.Lock()
		s.userID = newUserID
		s.activeID = ""
		s.active = nil
		s.pendingImage = nil
		s.history = nil
		s.lastError = ""
		s.mu.Unlock()
		s.gen.ResetContext()
	})
}

// ApplyLoaded hydrates the history list from a migration (or plain load)
// result. Results for a user who is no longer current are stale and
// discarded.
func (s *ChatSession) ApplyLoaded(userID string, chats []db.ChatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID != s.userID {
		s.logger.Debug("discarding stale chat list", "for_user", userID, "current_user", s.userID)
		return
	}
	s.history = chats
}

// Append adds a message to the active buffer without touching the model.
// Used when a collaborator (streaming UI, import) already has the content.
func (s *ChatSession) Append(msg db.ChatMessage) {
	s.mu.Lock()
	s.active = append(s.active, msg)
	s.mu.Unlock()
}

// Compose sends prompt to the model and appends the exchange to the active
// buffer. If an image is attached, the prompt is answered about the image in
// a standalone exchange, and the image is detached only when generation
// succeeds. Generation failure yields the fallback reply.
func (s *ChatSession) Compose(ctx context.Context, prompt string) string {
	s.mu.Lock()
	img := s.pendingImage
	turns := make([]ai.Turn, 0, len(s.active))
	for _, msg := range s.active {
		turns = append(turns, ai.Turn{Role: msg.Role, Content: msg.Content})
	}
	s.mu.Unlock()

	var reply string
	var err error
	if img != nil {
		reply, err = s.gen.GenerateFromImage(ctx, prompt, *img)
	} else {
		reply, err = s.gen.GenerateText(ctx, prompt, turns)
	}
	if err != nil {
		s.logger.Error("generation failed", "error", err)
		reply = fallbackReply
	}

	s.mu.Lock()
	s.active = append(s.active,
		db.ChatMessage{Role: db.RoleUser, Content: prompt, HasImage: img != nil},
		db.ChatMessage{Role: db.RoleModel, Content: reply},
	)
	if img != nil && err == nil {
		s.pendingImage = nil
	}
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	return reply
}

// StartNew archives the active buffer into history and begins a fresh
// conversation. An empty buffer archives nothing but still resets the model
// context. Persistence failures are logged, never fatal: losing an archive
// must not block starting a new chat.
func (s *ChatSession) StartNew() *db.ChatRecord {
	s.mu.Lock()
	userID := s.userID
	activeID := s.activeID
	messages := make(db.ChatMessages, len(s.active))
	copy(messages, s.active)
	s.activeID = ""
	s.active = nil
	s.pendingImage = nil
	s.mu.Unlock()

	s.gen.ResetContext()

	if len(messages) == 0 {
		return nil
	}

	id := activeID
	if id == "" {
		id = uuid.New().String()
	}
	rec := &db.ChatRecord{
		ID:        id,
		UserID:    userID,
		Title:     titleFromMessages(messages),
		Messages:  messages,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if userID == "" {
		// Signed out: the conversation goes to the device-local buffer and
		// will be migrated on the next login.
		s.archiveToBuffer(rec)
	} else {
		if err := s.store.Save(rec); err == nil {
			s.store.EvictOldest(userID)
		}
		event.Emit(event.ChatArchived{UserID: userID, ChatID: rec.ID})
	}

	s.mu.Lock()
	if s.userID == userID && userID != "" {
		s.history = prependCapped(s.history, *rec, s.store.Limit())
	}
	s.mu.Unlock()

	return rec
}

func (s *ChatSession) archiveToBuffer(rec *db.ChatRecord) {
	buf := s.store.Buffer()
	existing, err := buf.Read()
	if err != nil {
		s.logger.Warn("history buffer unreadable, overwriting", "error", err)
		existing = nil
	}
	existing = append(existing, db.LegacyChat{
		ID:        rec.ID,
		Title:     rec.Title,
		Messages:  rec.Messages,
		Timestamp: rec.Timestamp,
	})
	if err := buf.Rewrite(existing); err != nil {
		s.logger.Error("archive to history buffer failed", "chat", rec.ID, "error", err)
	}
}

// Load replaces the active buffer with a stored chat. The model context is
// reset; the next Compose reseeds it from the loaded messages.
func (s *ChatSession) Load(chatID string) error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	rec, err := s.store.Get(userID, chatID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.userID != userID {
		s.mu.Unlock()
		return nil
	}
	s.activeID = rec.ID
	s.active = make(db.ChatMessages, len(rec.Messages))
	copy(s.active, rec.Messages)
	s.pendingImage = nil
	s.mu.Unlock()

	s.gen.ResetContext()
	return nil
}

// AttachImage stages an image for the next Compose call, replacing any
// previously staged one.
func (s *ChatSession) AttachImage(data []byte, mimeType string) {
	s.mu.Lock()
	s.pendingImage = &ai.Image{Data: data, MIMEType: mimeType}
	s.mu.Unlock()
}

// RemoveImage discards the staged image.
func (s *ChatSession) RemoveImage() {
	s.mu.Lock()
	s.pendingImage = nil
	s.mu.Unlock()
}

// Status returns the last compose error, or empty when the last compose
// succeeded. The conversation only ever shows the fallback reply; this is
// the side channel for the underlying cause.
func (s *ChatSession) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// HasImage reports whether an image is staged.
func (s *ChatSession) HasImage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingImage != nil
}

// UserID returns the identity the session currently serves.
func (s *ChatSession) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Active returns a copy of the unarchived buffer and the ID it will archive
// under, if it was loaded from history.
func (s *ChatSession) Active() (string, db.ChatMessages) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(db.ChatMessages, len(s.active))
	copy(out, s.active)
	return s.activeID, out
}

// History returns a copy of the hydrated chat list, newest first.
func (s *ChatSession) History() []db.ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.ChatRecord, len(s.history))
	copy(out, s.history)
	return out
}

// titleFromMessages derives the archive title from the first user message,
// truncated on rune boundaries.
func titleFromMessages(messages db.ChatMessages) string {
	for _, msg := range messages {
		if msg.Role != db.RoleUser {
			continue
		}
		title := strings.TrimSpace(msg.Content)
		if title == "" {
			continue
		}
		runes := []rune(title)
		if len(runes) > titleRuneLimit {
			return string(runes[:titleRuneLimit]) + "…"
		}
		return title
	}
	return "New chat"
}

func prependCapped(history []db.ChatRecord, rec db.ChatRecord, limit int) []db.ChatRecord {
	out := append([]db.ChatRecord{rec}, history...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
