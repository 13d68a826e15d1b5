package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// SanitizeString trims surrounding space and removes control characters
// other than tab and newline
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// ParseVersionTag parses an entity tag carrying a request version, as sent
// in If-Match. Quotes and a weak W/ prefix are accepted. An empty tag
// returns nil.
func ParseVersionTag(tag string) (*int64, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil
	}
	tag = strings.TrimPrefix(tag, "W/")
	tag = strings.Trim(tag, `"`)

	v, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid version tag: %q", tag)
	}
	return &v, nil
}

// FormatVersionTag renders a version as a strong entity tag
func FormatVersionTag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

// ParseOptionalInt64 parses a decimal query value; empty returns nil
func ParseOptionalInt64(name, value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer: %q", name, value)
	}
	return &v, nil
}

// ParseOptionalTime parses an RFC 3339 timestamp or a YYYY-MM-DD date
// (midnight UTC); empty returns nil
func ParseOptionalTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD: %q", name, value)
	}
	return &t, nil
}
