package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReleaseType is the release channel a version was published on.
type ReleaseType string

const (
	ReleaseTypeSnapshot ReleaseType = "snapshot"
	ReleaseTypeRelease  ReleaseType = "release"
	ReleaseTypeOldBeta  ReleaseType = "old-beta"
	ReleaseTypeOldAlpha ReleaseType = "old-alpha"
)

// AllReleaseTypes lists every known channel in declaration order.
var AllReleaseTypes = []ReleaseType{
	ReleaseTypeSnapshot,
	ReleaseTypeRelease,
	ReleaseTypeOldBeta,
	ReleaseTypeOldAlpha,
}

// ParseReleaseType normalizes a channel name. Matching ignores case and
// treats '_' and '-' as equivalent, so "OLD_BETA" and "old-beta" agree.
func ParseReleaseType(s string) (ReleaseType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, t := range AllReleaseTypes {
		if string(t) == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown release type %q", s)
}

// Warning returns the confirmation text shown before enabling the channel,
// or an empty string for stable releases.
func (r ReleaseType) Warning() string {
	switch r {
	case ReleaseTypeSnapshot:
		return "Development builds are not guaranteed to be stable and may corrupt saved data. Use a separate directory or keep backups."
	case ReleaseTypeOldBeta, ReleaseTypeOldAlpha:
		return "These versions are very out of date and will not receive fixes. Use a separate directory to avoid corruption."
	}
	return ""
}

func (r ReleaseType) String() string {
	return string(r)
}

// MarshalJSON writes the canonical lower-case token.
func (r ReleaseType) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	t, err := ParseReleaseType(string(r))
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON accepts any casing of a known token.
func (r *ReleaseType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := ParseReleaseType(s)
	if err != nil {
		return err
	}
	*r = t
	return nil
}

// MarshalText lets ReleaseType be used as a JSON object key.
func (r ReleaseType) MarshalText() ([]byte, error) {
	t, err := ParseReleaseType(string(r))
	if err != nil {
		return nil, err
	}
	return []byte(t), nil
}

// UnmarshalText lets ReleaseType be decoded from a JSON object key.
func (r *ReleaseType) UnmarshalText(text []byte) error {
	t, err := ParseReleaseType(string(text))
	if err != nil {
		return err
	}
	*r = t
	return nil
}
