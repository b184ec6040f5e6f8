package identity

import (
	"testing"

	"github.com/google/uuid"
)

func TestForUserRoundTrip(t *testing.T) {
	userID := uuid.New()
	key := ForUser(userID)
	if !key.IsUser() || key.IsGuest() {
		t.Fatalf("key %q misclassified", key)
	}
	got, ok := key.UserID()
	if !ok || got != userID {
		t.Fatalf("UserID = %s, %v", got, ok)
	}
}

func TestForGuest(t *testing.T) {
	key := ForGuest("  tok-abc  ")
	if key.String() != "g:tok-abc" {
		t.Fatalf("key = %q", key)
	}
	if !key.IsGuest() {
		t.Fatal("expected guest key")
	}
	if _, ok := key.UserID(); ok {
		t.Fatal("guest key should not yield a user id")
	}
}

func TestParse(t *testing.T) {
	userKey := ForUser(uuid.New())
	parsed, err := Parse(userKey.String())
	if err != nil || parsed != userKey {
		t.Fatalf("Parse(%q) = %q, %v", userKey, parsed, err)
	}

	if _, err := Parse("u:not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed user key")
	}
	if _, err := Parse("g:"); err == nil {
		t.Fatal("expected error for empty guest key")
	}
	if _, err := Parse("x:whatever"); err == nil {
		t.Fatal("expected error for unknown prefix")
	}
}
