package service

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/phoenixchat/phoenixchat/pkg/db"
	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

const bufferFile = "chat_history.json"

// LocalBuffer is the device-local history blob that predates accounts.
// It holds a JSON array of legacy chats. Clearing rewrites the file with an
// empty array rather than deleting it, so the presence of the file keeps
// meaning "this install has seen the old scheme".
type LocalBuffer struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewLocalBuffer manages the buffer file under dataDir.
func NewLocalBuffer(dataDir string) *LocalBuffer {
	return &LocalBuffer{
		path:   filepath.Join(dataDir, bufferFile),
		logger: utils.GetLogger(),
	}
}

// HasData reports whether the buffer holds at least one chat. A missing,
// empty, or unparseable file counts as no data.
func (b *LocalBuffer) HasData() bool {
	chats, err := b.Read()
	return err == nil && len(chats) > 0
}

// Read parses the buffer. A missing file yields an empty slice and nil
// error. A blob that is not a JSON array at all is an error; a malformed
// entry inside the array is skipped so one bad record cannot hold the
// rest of the history hostage.
func (b *LocalBuffer) Read() ([]db.LegacyChat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	chats := make([]db.LegacyChat, 0, len(entries))
	for i, entry := range entries {
		var lc db.LegacyChat
		if err := json.Unmarshal(entry, &lc); err != nil {
			b.logger.Warn("skipping malformed history buffer entry", "index", i, "error", err)
			continue
		}
		chats = append(chats, lc)
	}
	if len(chats) == 0 {
		return nil, nil
	}
	return chats, nil
}

// Clear rewrites the buffer to an empty array.
func (b *LocalBuffer) Clear() error {
	return b.Rewrite(nil)
}

// Rewrite replaces the buffer content with the given chats. Used after a
// partial migration to keep only the remnant that still needs moving.
func (b *LocalBuffer) Rewrite(chats []db.LegacyChat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if chats == nil {
		chats = []db.LegacyChat{}
	}
	raw, err := json.Marshal(chats)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(b.path, raw, 0o600); err != nil {
		b.logger.Error("rewrite history buffer failed", "path", b.path, "error", err)
		return err
	}
	return nil
}
