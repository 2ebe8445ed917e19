package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ISO8601 is the wire format for all timestamps sent to the central system:
// UTC with millisecond precision.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// DateTime wraps a time.Time struct, allowing for improved dateTime JSON compatibility.
type DateTime struct {
	time.Time
}

// NewDateTime Creates a new DateTime struct, embedding a time.Time struct.
func NewDateTime(time time.Time) *DateTime {
	return &DateTime{Time: time}
}

func (dt DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.UTC().Format(ISO8601))
}

func (dt *DateTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	// central systems are loose about fractional seconds and zone suffixes
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		parsed, err = time.Parse(ISO8601, strings.TrimSuffix(raw, "Z")+"Z")
		if err != nil {
			return err
		}
	}
	dt.Time = parsed.UTC()
	return nil
}

func (dt *DateTime) String() string {
	return dt.UTC().Format(ISO8601)
}
