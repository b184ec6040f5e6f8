package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// OrderContact is the contact snapshot frozen onto an order at
// placement time. Name and phone are mandatory; email is kept when the
// shopper or their profile provides one.
type OrderContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Value marshals the snapshot into a jsonb column.
func (c OrderContact) Value() (driver.Value, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("order contact: missing name")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return nil, fmt.Errorf("order contact: missing phone")
	}
	return json.Marshal(c)
}

// Scan decodes the jsonb column.
func (c *OrderContact) Scan(value interface{}) error {
	if value == nil {
		*c = OrderContact{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("order contact: unsupported scan type %T", value)
	}
}
