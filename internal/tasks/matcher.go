package tasks

import (
	"fmt"
	"strings"

	"neuroassess/common/utils"
	"neuroassess/internal/auth"
	"neuroassess/internal/engine"
)

// Matcher decides whether a work item is visible to a principal.
//
// An ActorId equal to the principal's name makes the item visible. Otherwise
// the GroupId, coerced to a string, must be one of the principal's roles. A
// non-matching ActorId does not hide an item whose group matches.
type Matcher struct {
	// NormalizeGroups compares groups trimmed and case-folded instead of exactly.
	NormalizeGroups bool
}

// IsVisible reports whether p may see item. It does not look at the phase.
func (m Matcher) IsVisible(item engine.WorkItem, p auth.Principal) bool {
	if actor, ok := item.ActorID(); ok && actor == p.Name {
		return true
	}
	raw, ok := item.GroupID()
	if !ok {
		return false
	}
	group := groupString(raw)
	if !m.NormalizeGroups {
		return utils.SliceContains(p.Roles, group)
	}
	group = normalizeGroup(group)
	for _, role := range p.Roles {
		if normalizeGroup(role) == group {
			return true
		}
	}
	return false
}

func groupString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func normalizeGroup(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
