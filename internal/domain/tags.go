package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// Tags is an ordered set of tag names stored as a JSON array.
type Tags []string

// NewTags trims, drops empties and removes duplicates while keeping first-seen order.
func NewTags(values ...string) Tags {
	seen := make(map[string]struct{}, len(values))
	tags := make(Tags, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		tags = append(tags, v)
	}
	return tags
}


// Scan implements the sql.Scanner interface.
func (t *Tags) Scan(value any) error {
	if value == nil {
		*t = Tags{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for Tags")
	}

	if len(data) == 0 {
		*t = Tags{}
		return nil
	}

	return json.Unmarshal(data, (*[]string)(t))
}

// Value implements the driver.Valuer interface.
func (t Tags) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
