package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// RuleAction is the decision a matching Rule contributes.
type RuleAction string

const (
	ActionAllow    RuleAction = "allow"
	ActionDisallow RuleAction = "disallow"
)

// UnmarshalJSON accepts any casing.
func (a *RuleAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch RuleAction(strings.ToLower(s)) {
	case ActionAllow:
		*a = ActionAllow
	case ActionDisallow:
		*a = ActionDisallow
	default:
		return fmt.Errorf("unknown rule action %q", s)
	}
	return nil
}

// OSRestriction limits a Rule to an OS name and an optional version pattern.
type OSRestriction struct {
	Name    OperatingSystem `json:"name,omitempty"`
	Version string          `json:"version,omitempty"`
}

// Matches reports whether p satisfies the restriction. A version pattern
// that does not compile is ignored. The pattern must match the whole
// version string.
func (r *OSRestriction) Matches(p Platform) bool {
	if r.Name != "" && r.Name != p.OS {
		return false
	}
	if r.Version != "" {
		re, err := regexp.Compile(`^(?:` + r.Version + `)$`)
		if err == nil && !re.MatchString(p.Version) {
			return false
		}
	}
	return true
}

// Rule is one entry of an ordered allow/disallow list.
type Rule struct {
	Action RuleAction     `json:"action"`
	OS     *OSRestriction `json:"os,omitempty"`
}

// AppliedAction returns the rule's action for p, or false when the rule's
// restriction does not match and it contributes nothing.
func (r Rule) AppliedAction(p Platform) (RuleAction, bool) {
	if r.OS != nil && !r.OS.Matches(p) {
		return "", false
	}
	if r.Action == "" {
		return ActionAllow, true
	}
	return r.Action, true
}

// AppliesTo evaluates rules against p. A nil list means allowed. Otherwise
// the decision starts as disallow and every matching rule overwrites it, so
// an empty list disallows.
func AppliesTo(rules []Rule, p Platform) bool {
	if rules == nil {
		return true
	}
	last := ActionDisallow
	for _, rule := range rules {
		if action, ok := rule.AppliedAction(p); ok {
			last = action
		}
	}
	return last == ActionAllow
}
