package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{1, 1},
		{MaxLimit, MaxLimit},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	orig := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
		ID:        uuid.New(),
	}

	token := EncodeCursor(orig)
	parsed, err := ParseCursor(token)
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if !parsed.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", parsed.CreatedAt, orig.CreatedAt)
	}
	if parsed.ID != orig.ID {
		t.Errorf("ID = %s, want %s", parsed.ID, orig.ID)
	}
}

func TestParseCursorEmptyMeansFirstPage(t *testing.T) {
	cursor, err := ParseCursor("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected nil cursor, got %+v", cursor)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, value := range []string{"not base64!", "bm8tc2VwYXJhdG9y", "fHx8"} {
		if _, err := ParseCursor(value); err == nil {
			t.Errorf("expected error for %q", value)
		}
	}
}
