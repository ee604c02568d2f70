package tasks

import (
	"testing"

	"neuroassess/internal/auth"
	"neuroassess/internal/engine"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMatcher_Scenarios(t *testing.T) {
	m := Matcher{}

	tests := []struct {
		name   string
		params map[string]any
		p      auth.Principal
		want   bool
	}{
		{"visible by actor", actor("mary"), mary, true},
		{"visible by group", group("practitioner"), paul, true},
		{"actor set to someone else, no group", actor("paul"), mary, false},
		{"actor mismatch falls through to group", map[string]any{engine.ParamActorID: "mary", engine.ParamGroupID: "practitioner"}, paul, true},
		{"actor and group both miss", map[string]any{engine.ParamActorID: "paul", engine.ParamGroupID: "practitioner"}, mary, false},
		{"no assignment hints", map[string]any{}, paul, false},
		{"nil parameters", nil, paul, false},
		{"actor comparison is case sensitive", actor("Mary"), mary, false},
		{"group comparison is exact", group("Practitioner"), paul, false},
		{"nil group ignored", map[string]any{engine.ParamGroupID: nil}, paul, false},
		{"non-string group coerced", map[string]any{engine.ParamGroupID: 7}, auth.Principal{Name: "x", Roles: []string{"7"}}, true},
		{"anonymous sees nothing", group("practitioner"), auth.Anonymous(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsVisible(engine.WorkItem{ID: "t", Parameters: tt.params}, tt.p))
		})
	}
}

func TestMatcher_NormalizeGroups(t *testing.T) {
	m := Matcher{NormalizeGroups: true}
	p := auth.Principal{Name: "paul", Roles: []string{" Practitioner "}}

	assert.True(t, m.IsVisible(engine.WorkItem{Parameters: group("practitioner")}, p))
	assert.True(t, m.IsVisible(engine.WorkItem{Parameters: group("PRACTITIONER ")}, p))
	assert.False(t, m.IsVisible(engine.WorkItem{Parameters: group("patient")}, p))
	// actor names are never normalized
	assert.False(t, m.IsVisible(engine.WorkItem{Parameters: actor("PAUL")}, p))
}

func genPrincipal(t *rapid.T) auth.Principal {
	return auth.Principal{
		Name:  rapid.StringMatching(`[a-zA-Z]{1,6}`).Draw(t, "name"),
		Roles: rapid.SliceOf(rapid.StringMatching(`[a-zA-Z]{1,6}`)).Draw(t, "roles"),
	}
}

// TestProperty1_ActorMatchIsVisible 指派人等于当前用户时始终可见，与角色和 GroupId 无关
func TestProperty1_ActorMatchIsVisible(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := genPrincipal(t)
		params := map[string]any{engine.ParamActorID: p.Name}
		if rapid.Bool().Draw(t, "hasGroup") {
			params[engine.ParamGroupID] = rapid.StringMatching(`[a-zA-Z]{0,6}`).Draw(t, "group")
		}
		normalize := rapid.Bool().Draw(t, "normalize")

		if !(Matcher{NormalizeGroups: normalize}).IsVisible(engine.WorkItem{Parameters: params}, p) {
			t.Fatalf("item assigned to %q hidden from %q", p.Name, p.Name)
		}
	})
}

// TestProperty2_GroupMatchIsVisible 指派人缺失或不匹配时，GroupId 属于角色集即可见
func TestProperty2_GroupMatchIsVisible(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := genPrincipal(t)
		if len(p.Roles) == 0 {
			p.Roles = []string{"practitioner"}
		}
		role := rapid.SampledFrom(p.Roles).Draw(t, "role")
		params := map[string]any{engine.ParamGroupID: role}
		if rapid.Bool().Draw(t, "hasActor") {
			params[engine.ParamActorID] = p.Name + "-other"
		}

		if !(Matcher{}).IsVisible(engine.WorkItem{Parameters: params}, p) {
			t.Fatalf("item for group %q hidden from roles %v", role, p.Roles)
		}
	})
}

// TestProperty3_OtherwiseInvisible 两个条件都不满足时不可见
func TestProperty3_OtherwiseInvisible(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := genPrincipal(t)
		params := map[string]any{}
		if rapid.Bool().Draw(t, "hasActor") {
			params[engine.ParamActorID] = p.Name + "-other"
		}
		if rapid.Bool().Draw(t, "hasGroup") {
			g := rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "group")
			for _, r := range p.Roles {
				if r == g {
					t.Skip("group drawn from roles")
				}
			}
			params[engine.ParamGroupID] = g
		}

		if (Matcher{}).IsVisible(engine.WorkItem{Parameters: params}, p) {
			t.Fatalf("item %v visible to %+v", params, p)
		}
	})
}
