package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	userPrefix  = "u:"
	guestPrefix = "g:"
)

// OwnerKey scopes a cart to either an authenticated user or an
// anonymous guest. A key never changes meaning: a guest who logs in
// gets a new key and their guest cart is merged, not relabeled.
type OwnerKey string

// ForUser builds the owner key for an authenticated user.
func ForUser(userID uuid.UUID) OwnerKey {
	return OwnerKey(userPrefix + userID.String())
}

// ForGuest builds the owner key for a guest token.
func ForGuest(token string) OwnerKey {
	return OwnerKey(guestPrefix + strings.TrimSpace(token))
}

// NewGuestToken issues a fresh opaque guest token.
func NewGuestToken() string {
	return uuid.NewString()
}

// GuestKeyPattern is the SQL LIKE pattern matching every guest key.
func GuestKeyPattern() string {
	return guestPrefix + "%"
}

// Parse validates a raw owner key string.
func Parse(raw string) (OwnerKey, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, userPrefix):
		if _, err := uuid.Parse(strings.TrimPrefix(trimmed, userPrefix)); err != nil {
			return "", fmt.Errorf("invalid user owner key: %w", err)
		}
		return OwnerKey(trimmed), nil
	case strings.HasPrefix(trimmed, guestPrefix):
		if len(trimmed) <= len(guestPrefix) {
			return "", fmt.Errorf("empty guest owner key")
		}
		return OwnerKey(trimmed), nil
	default:
		return "", fmt.Errorf("unrecognized owner key %q", trimmed)
	}
}

// String returns the raw key.
func (k OwnerKey) String() string {
	return string(k)
}

// IsUser reports whether the key belongs to an authenticated user.
func (k OwnerKey) IsUser() bool {
	return strings.HasPrefix(string(k), userPrefix)
}

// IsGuest reports whether the key belongs to a guest session.
func (k OwnerKey) IsGuest() bool {
	return strings.HasPrefix(string(k), guestPrefix)
}

// UserID extracts the user id from a user-scoped key.
func (k OwnerKey) UserID() (uuid.UUID, bool) {
	if !k.IsUser() {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(string(k), userPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
