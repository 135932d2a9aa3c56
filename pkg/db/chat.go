// Database models for persisted chats
package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Message roles. The model role follows the Gemini convention ("model"
// rather than "assistant") because persisted records round-trip to the AI
// history format directly.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// SchemeVersion tags which storage scheme a record was read from.
type SchemeVersion int

const (
	// SchemeLegacy is the pre-account flat collection (table "chats",
	// filtered by a user_id column) and the local history buffer blob.
	SchemeLegacy SchemeVersion = iota + 1
	// SchemePerUser is the current per-user scheme (table "user_chats").
	SchemePerUser
)

// ChatMessage is a single conversational turn. Immutable once appended.
type ChatMessage struct {
	Role     string `json:"role"` // user, model
	Content  string `json:"content"`
	HasImage bool   `json:"hasImage,omitempty"`
	ImageRef string `json:"imageRef,omitempty"` // opaque handle, not interpreted here
}

// ChatMessages is the ordered turn sequence, stored as a JSON column.
type ChatMessages []ChatMessage

// Value implements driver.Valuer for database storage
func (m ChatMessages) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (m *ChatMessages) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return nil
}

// ChatRecord is a persisted chat in the current per-user scheme.
//
// Timestamp is the ISO-8601 recency key visible to collaborators; Seq is a
// server-assigned monotonic sequence used only to break ordering ties
// between records carrying the same wall-clock string.
type ChatRecord struct {
	ID         string       `json:"id" gorm:"primaryKey;size:36"`
	UserID     string       `json:"userId" gorm:"index;size:128;not null"`
	Title      string       `json:"title" gorm:"size:200"`
	Messages   ChatMessages `json:"messages" gorm:"type:text"`
	Timestamp  string       `json:"timestamp" gorm:"size:40;index"`
	Seq        int64        `json:"-" gorm:"index"`
	MigratedAt string       `json:"migratedAt,omitempty" gorm:"size:40"`
	CreatedAt  time.Time    `json:"-"`
	UpdatedAt  time.Time    `json:"-"`
}

func (*ChatRecord) TableName() string {
	return "user_chats"
}

// EffectiveTime resolves the record's ordering instant: the persisted
// timestamp when it parses, otherwise the row update/creation times,
// otherwise the zero time (sorts last).
func (r *ChatRecord) EffectiveTime() time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
		return ts
	}
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt
	}
	return time.Time{}
}

// LegacyChat is a record in the pre-account flat collection. The same shape
// is used for entries parsed from the local history buffer (where UserID is
// typically empty because the buffer predates accounts).
type LegacyChat struct {
	ID        string       `json:"id" gorm:"primaryKey;size:36"`
	UserID    string       `json:"userId,omitempty" gorm:"index;size:128"`
	Title     string       `json:"title" gorm:"size:200"`
	Messages  ChatMessages `json:"messages" gorm:"type:text"`
	Timestamp string       `json:"timestamp" gorm:"size:40"`
}

func (*LegacyChat) TableName() string {
	return "chats"
}
