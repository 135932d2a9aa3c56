package event

// Event name constants.
const (
	NameUserChanged            = "user.changed"
	NameMigrationStatusChanged = "migration.status_changed"
	NameChatsLoaded            = "chats.loaded"
	NameChatArchived           = "chat.archived"
)

// UserChanged signals that the authenticated user identity changed.
// Either field may be empty: OldUserID is empty on first login after an
// anonymous session, NewUserID is empty on logout.
type UserChanged struct {
	OldUserID string `json:"oldUserId,omitempty"`
	NewUserID string `json:"newUserId,omitempty"`
}

func (UserChanged) EventName() string { return NameUserChanged }

// MigrationStatusChanged signals a migration status transition for a user.
type MigrationStatusChanged struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // idle, in_progress, complete, failed
}

func (MigrationStatusChanged) EventName() string { return NameMigrationStatusChanged }

// ChatsLoaded signals that a user's chat list was (re)computed. Clients
// fetch the list via the history endpoint.
type ChatsLoaded struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

func (ChatsLoaded) EventName() string { return NameChatsLoaded }

// ChatArchived signals that the active conversation was archived to history.
type ChatArchived struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

func (ChatArchived) EventName() string { return NameChatArchived }
