package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phoenixchat/phoenixchat/pkg/db"
)

func TestLocalBuffer_MissingFileIsEmpty(t *testing.T) {
	buf := NewLocalBuffer(t.TempDir())

	chats, err := buf.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("Read() = %d chats, want 0", len(chats))
	}
	if buf.HasData() {
		t.Fatal("HasData() = true for missing file")
	}
}

func TestLocalBuffer_RewriteRoundTrip(t *testing.T) {
	buf := NewLocalBuffer(t.TempDir())

	in := []db.LegacyChat{
		{ID: "c1", Title: "first", Messages: db.ChatMessages{{Role: db.RoleUser, Content: "hi"}}, Timestamp: "2024-01-02T03:04:05Z"},
		{ID: "c2", Title: "second"},
	}
	if err := buf.Rewrite(in); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	out, err := buf.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(out) != 2 || out[0].ID != "c1" || out[1].ID != "c2" {
		t.Fatalf("Read() = %+v, want the two written chats", out)
	}
	if out[0].Messages[0].Content != "hi" {
		t.Fatalf("message content = %q, want %q", out[0].Messages[0].Content, "hi")
	}
	if !buf.HasData() {
		t.Fatal("HasData() = false after Rewrite")
	}
}

func TestLocalBuffer_ClearLeavesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	buf := NewLocalBuffer(dir)

	if err := buf.Rewrite([]db.LegacyChat{{ID: "c1"}}); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if err := buf.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, bufferFile))
	if err != nil {
		t.Fatalf("buffer file should still exist after Clear: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("cleared buffer = %q, want %q", raw, "[]")
	}
	if buf.HasData() {
		t.Fatal("HasData() = true after Clear")
	}
}

func TestLocalBuffer_SkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	content := `[{"id":"good","title":"ok"},"not an object",{"id":"also-good"}]`
	if err := os.WriteFile(filepath.Join(dir, bufferFile), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	buf := NewLocalBuffer(dir)
	chats, err := buf.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(chats) != 2 || chats[0].ID != "good" || chats[1].ID != "also-good" {
		t.Fatalf("Read() = %+v, want the two well-formed entries", chats)
	}
}

func TestLocalBuffer_CorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, bufferFile), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	buf := NewLocalBuffer(dir)
	if _, err := buf.Read(); err == nil {
		t.Fatal("Read() of corrupt buffer should fail")
	}
	if buf.HasData() {
		t.Fatal("HasData() = true for corrupt buffer")
	}
}
