package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is the address snapshot frozen onto an order at
// placement time. Later edits to the saved address never touch it.
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Value marshals the snapshot into a jsonb column.
func (s ShippingAddress) Value() (driver.Value, error) {
	if strings.TrimSpace(s.Line1) == "" {
		return nil, fmt.Errorf("shipping address: missing line1")
	}
	if strings.TrimSpace(s.City) == "" {
		return nil, fmt.Errorf("shipping address: missing city")
	}
	if strings.TrimSpace(s.PostalCode) == "" {
		return nil, fmt.Errorf("shipping address: missing postal_code")
	}
	return json.Marshal(s)
}

// Scan decodes the jsonb column.
func (s *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*s = ShippingAddress{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("shipping address: unsupported scan type %T", value)
	}
}
