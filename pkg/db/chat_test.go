package db

import (
	"testing"
	"time"
)

func TestChatRecord_EffectiveTime(t *testing.T) {
	parsed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  ChatRecord
		want time.Time
	}{
		{
			name: "valid timestamp wins",
			rec:  ChatRecord{Timestamp: "2024-03-01T12:00:00Z", UpdatedAt: updated, CreatedAt: created},
			want: parsed,
		},
		{
			name: "garbage timestamp falls back to updated",
			rec:  ChatRecord{Timestamp: "not-a-time", UpdatedAt: updated, CreatedAt: created},
			want: updated,
		},
		{
			name: "no timestamps fall back to created",
			rec:  ChatRecord{CreatedAt: created},
			want: created,
		},
		{
			name: "nothing known sorts as zero",
			rec:  ChatRecord{},
			want: time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.EffectiveTime(); !got.Equal(tt.want) {
				t.Fatalf("EffectiveTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChatMessages_RoundTripThroughDriver(t *testing.T) {
	in := ChatMessages{
		{Role: RoleUser, Content: "hi", HasImage: true, ImageRef: "img-1"},
		{Role: RoleModel, Content: "hello"},
	}

	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var out ChatMessages
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(out) != 2 || out[0].ImageRef != "img-1" || out[1].Content != "hello" {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestChatMessages_EmptyValueIsJSONArray(t *testing.T) {
	var m ChatMessages
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "[]" {
		t.Fatalf("Value() = %v, want \"[]\"", v)
	}
}
