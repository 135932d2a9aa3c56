// Chat session HTTP handlers
package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phoenixchat/phoenixchat/pkg/auth"
	"github.com/phoenixchat/phoenixchat/pkg/db"
	"github.com/phoenixchat/phoenixchat/pkg/models"
	"github.com/phoenixchat/phoenixchat/pkg/service"
)

// ChatHandler exposes the active session, archived history, and migration
// status over HTTP.
type ChatHandler struct {
	session   *service.ChatSession
	store     *service.ChatStore
	migration *service.MigrationService
	provider  *auth.StaticProvider
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(session *service.ChatSession, store *service.ChatStore, migration *service.MigrationService, provider *auth.StaticProvider) *ChatHandler {
	return &ChatHandler{
		session:   session,
		store:     store,
		migration: migration,
		provider:  provider,
	}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	sess := r.Group("/session")
	{
		sess.GET("", h.GetSession)
		sess.POST("/compose", h.Compose)
		sess.POST("/new", h.StartNew)
		sess.POST("/load/:id", h.LoadChat)
		sess.POST("/image", h.AttachImage)
		sess.DELETE("/image", h.RemoveImage)
		sess.POST("/user", h.SetUser)
	}

	r.GET("/history", h.GetHistory)
	r.DELETE("/chats", h.DeleteAllChats)
	r.DELETE("/chats/:id", h.DeleteChat)
	r.GET("/migration/status", h.GetMigrationStatus)
}

// GetSession returns the active conversation.
// GET /api/v1/session
func (h *ChatHandler) GetSession(c *gin.Context) {
	chatID, messages := h.session.Active()
	c.JSON(http.StatusOK, models.SessionResponse{
		UserID:   h.session.UserID(),
		ChatID:   chatID,
		Messages: messages,
		IsEmpty:  len(messages) == 0,
		HasImage: h.session.HasImage(),
		Status:   h.session.Status(),
	})
}

// Compose sends a prompt and returns the reply. Generation failures come
// back as a normal reply carrying the fallback text, never as an HTTP error.
// POST /api/v1/session/compose
func (h *ChatHandler) Compose(c *gin.Context) {
	var req models.ComposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply := h.session.Compose(c.Request.Context(), req.Prompt)
	c.JSON(http.StatusOK, models.ComposeResponse{Reply: reply})
}

// StartNew archives the active conversation and starts a fresh one.
// POST /api/v1/session/new
func (h *ChatHandler) StartNew(c *gin.Context) {
	rec := h.session.StartNew()
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"archived": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": true, "chatId": rec.ID, "title": rec.Title})
}

// LoadChat replaces the active conversation with a stored one.
// POST /api/v1/session/load/:id
func (h *ChatHandler) LoadChat(c *gin.Context) {
	id := c.Param("id")
	if err := h.session.Load(id); err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": true})
}

// AttachImage stages an image for the next compose.
// POST /api/v1/session/image
func (h *ChatHandler) AttachImage(c *gin.Context) {
	var req models.AttachImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image data"})
		return
	}
	h.session.AttachImage(data, req.MIMEType)
	c.JSON(http.StatusOK, gin.H{"attached": true})
}

// RemoveImage discards the staged image.
// DELETE /api/v1/session/image
func (h *ChatHandler) RemoveImage(c *gin.Context) {
	h.session.RemoveImage()
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// SetUser changes the authenticated identity. An empty userId signs out.
// POST /api/v1/session/user
func (h *ChatHandler) SetUser(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.provider.SetUser(req.UserID)
	c.JSON(http.StatusOK, gin.H{"userId": req.UserID})
}

// GetHistory lists the user's archived chats, newest first. The list is
// read from storage rather than the session cache so it reflects deletes.
// GET /api/v1/history
func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID := h.session.UserID()
	if userID == "" {
		c.JSON(http.StatusOK, models.HistoryResponse{Chats: []db.ChatRecord{}})
		return
	}
	chats, err := h.store.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, models.HistoryResponse{Chats: chats})
}

// DeleteChat removes one archived chat.
// DELETE /api/v1/chats/:id
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID := h.session.UserID()
	if err := h.store.Delete(userID, c.Param("id")); err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// DeleteAllChats removes the user's entire archive.
// DELETE /api/v1/chats
func (h *ChatHandler) DeleteAllChats(c *gin.Context) {
	userID := h.session.UserID()
	if userID == "" {
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}
	if err := h.store.DeleteAll(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetMigrationStatus reports the migration state for the current (or given)
// user.
// GET /api/v1/migration/status?user_id=xxx
func (h *ChatHandler) GetMigrationStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		userID = h.session.UserID()
	}
	c.JSON(http.StatusOK, models.MigrationStatusResponse{
		UserID: userID,
		Status: string(h.migration.Status(userID)),
	})
}
