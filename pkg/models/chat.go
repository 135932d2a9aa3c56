// API types for the chat session endpoints
package models

import "github.com/phoenixchat/phoenixchat/pkg/db"

// ComposeRequest is the body for POST /api/v1/session/compose.
type ComposeRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// ComposeResponse carries the model reply.
type ComposeResponse struct {
	Reply string `json:"reply"`
}

// SessionResponse describes the active conversation. Status carries the
// last compose error, empty when the last compose succeeded.
type SessionResponse struct {
	UserID   string          `json:"userId,omitempty"`
	ChatID   string          `json:"chatId,omitempty"`
	Messages db.ChatMessages `json:"messages"`
	IsEmpty  bool            `json:"isEmpty"`
	HasImage bool            `json:"hasImage"`
	Status   string          `json:"status,omitempty"`
}

// LoginRequest is the body for POST /api/v1/session/user.
type LoginRequest struct {
	UserID string `json:"userId"`
}

// AttachImageRequest is the body for POST /api/v1/session/image.
// Data is base64-encoded image bytes.
type AttachImageRequest struct {
	Data     string `json:"data" binding:"required"`
	MIMEType string `json:"mimeType"`
}

// HistoryResponse lists archived chats, newest first.
type HistoryResponse struct {
	Chats []db.ChatRecord `json:"chats"`
}

// MigrationStatusResponse reports the migration state for a user.
type MigrationStatusResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// RuntimeInfo tells clients where to reach the backend.
type RuntimeInfo struct {
	HTTPBaseURL string `json:"http_base_url"`
	WSBaseURL   string `json:"ws_base_url"`
	Port        int    `json:"port"`
}
