package bundle

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a bundle id. Raw primary keys are JSON numbers; sigil-tagged ids
// are JSON strings. Both decode into the string form so the sigil codec can
// operate on them uniformly.
type ID string

// IDOf returns the ID form of a raw numeric id.
func IDOf(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// String returns the raw string form.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// UnmarshalJSON accepts a JSON number, string, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as JSON numbers and everything else
// (sigil-tagged values) as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Int64 parses the id as a raw numeric id.
func (id ID) Int64() (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bundle: id %q is not numeric: %w", string(id), err)
	}
	return n, nil
}
