package model

import (
	"fmt"
	"strconv"
	"time"
)

// Epoch is the platform epoch (2015-01-01T00:00:00Z) in milliseconds since
// the Unix epoch. Snowflake timestamps are relative to it.
const Epoch = 1420070400000

// Snowflake is a 64-bit, globally unique, time-sortable entity ID.
// The wire format is a decimal string; JSON marshalling preserves that.
type Snowflake uint64

// ParseSnowflake parses the decimal string form of an ID.
func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", s, err)
	}
	return Snowflake(v), nil
}

// String returns the decimal wire form.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero reports whether the ID is unset.
func (s Snowflake) IsZero() bool { return s == 0 }

// Time returns the creation time encoded in bits 63..22.
func (s Snowflake) Time() time.Time {
	ms := int64(s>>22) + Epoch
	return time.UnixMilli(ms)
}

// MarshalJSON encodes the ID as a decimal string.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or null.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		*s = 0
		return nil
	}
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	if str == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("unmarshal snowflake %q: %w", str, err)
	}
	*s = Snowflake(v)
	return nil
}
