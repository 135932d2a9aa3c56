// Package ai wraps the chat model behind a small generation interface so the
// session layer never depends on a concrete provider.
package ai

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no model credentials are available.
var ErrNotConfigured = errors.New("ai: model not configured")

// Turn is one conversational exchange entry fed to the model as context.
type Turn struct {
	Role    string // "user" or "model"
	Content string
}

// Image is raw image bytes with a MIME type for multimodal prompts.
type Image struct {
	Data     []byte
	MIMEType string
}

// Generator produces model replies. Implementations keep their own
// continuation state; ResetContext discards it so the next call starts a
// fresh conversation.
type Generator interface {
	// GenerateText produces a reply to prompt. history seeds the
	// conversation context on the first call after a reset; later calls
	// continue from the implementation's own state.
	GenerateText(ctx context.Context, prompt string, history []Turn) (string, error)
	// GenerateFromImage produces a reply to prompt about img. The exchange
	// is standalone and does not join the continuation state.
	GenerateFromImage(ctx context.Context, prompt string, img Image) (string, error)
	// ResetContext clears accumulated conversation state.
	ResetContext()
}

// Unconfigured is a Generator used when no API key is present. Every
// generation attempt fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) GenerateText(ctx context.Context, prompt string, history []Turn) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) GenerateFromImage(ctx context.Context, prompt string, img Image) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) ResetContext() {}
