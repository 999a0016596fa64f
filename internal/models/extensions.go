package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ExtensionMap is an open-ended key-value extension field. Core invariants
// never depend on its contents; anything load-bearing gets a typed column.
type ExtensionMap map[string]string

// Value implements driver.Valuer for database serialization.
func (m ExtensionMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database deserialization.
func (m *ExtensionMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported extension map type %T", value)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}
