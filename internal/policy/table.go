package policy

import (
	"fmt"
	"slices"

	id "taskguard/pkg/domain"
)

// ResourceType names the kind of resource a rule guards.
type ResourceType string

const (
	ResourceOrganization ResourceType = "organization"
	ResourceTask         ResourceType = "task"
	ResourceAudit        ResourceType = "audit"
)

// Action is an operation on a resource.
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionAssign       Action = "assign"
	ActionUnassign     Action = "unassign"
	ActionAddMember    Action = "add_member"
	ActionRemoveMember Action = "remove_member"
	ActionChangeRole   Action = "change_role"
)

// Rule lists the roles allowed to perform Action on Resource. When
// OwnerExempt is set the resource's creator is allowed regardless of role.
type Rule struct {
	Resource      ResourceType
	Action        Action
	RequiredRoles []id.Role
	OwnerExempt   bool
}

// Allows reports whether role is one of the rule's required roles.
func (r Rule) Allows(role id.Role) bool {
	return slices.Contains(r.RequiredRoles, role)
}

type ruleKey struct {
	resource ResourceType
	action   Action
}

// Table is an immutable set of rules keyed by (resource, action).
type Table struct {
	rules []Rule
	index map[ruleKey]int
}

// NewTable builds a table. Duplicate keys and unknown roles are rejected.
func NewTable(rules ...Rule) (*Table, error) {
	t := &Table{
		rules: make([]Rule, 0, len(rules)),
		index: make(map[ruleKey]int, len(rules)),
	}
	for _, r := range rules {
		k := ruleKey{r.Resource, r.Action}
		if _, dup := t.index[k]; dup {
			return nil, fmt.Errorf("duplicate rule for %s/%s", r.Resource, r.Action)
		}
		for _, role := range r.RequiredRoles {
			if !role.IsValid() {
				return nil, fmt.Errorf("rule %s/%s: unknown role %q", r.Resource, r.Action, role)
			}
		}
		r.RequiredRoles = slices.Clone(r.RequiredRoles)
		t.index[k] = len(t.rules)
		t.rules = append(t.rules, r)
	}
	return t, nil
}

var (
	admins       = []id.Role{id.RoleSuperAdmin, id.RoleOrgAdmin}
	taskManagers = []id.Role{id.RoleSuperAdmin, id.RoleOrgAdmin, id.RoleManager}
	contributors = []id.Role{id.RoleSuperAdmin, id.RoleOrgAdmin, id.RoleManager, id.RoleUser}
)

// DefaultTable returns the rules the service ships with. Creating an
// organization has no rule: any authenticated principal may do it.
func DefaultTable() *Table {
	t, err := NewTable(
		Rule{Resource: ResourceOrganization, Action: ActionRead, RequiredRoles: id.AllRoles()},
		Rule{Resource: ResourceOrganization, Action: ActionUpdate, RequiredRoles: admins},
		Rule{Resource: ResourceOrganization, Action: ActionDelete, RequiredRoles: []id.Role{id.RoleSuperAdmin}},
		Rule{Resource: ResourceOrganization, Action: ActionAddMember, RequiredRoles: admins},
		Rule{Resource: ResourceOrganization, Action: ActionRemoveMember, RequiredRoles: admins},
		Rule{Resource: ResourceOrganization, Action: ActionChangeRole, RequiredRoles: admins},

		Rule{Resource: ResourceTask, Action: ActionCreate, RequiredRoles: contributors},
		Rule{Resource: ResourceTask, Action: ActionRead, RequiredRoles: id.AllRoles()},
		Rule{Resource: ResourceTask, Action: ActionUpdate, OwnerExempt: true},
		Rule{Resource: ResourceTask, Action: ActionDelete, OwnerExempt: true},
		Rule{Resource: ResourceTask, Action: ActionAssign, RequiredRoles: taskManagers, OwnerExempt: true},
		Rule{Resource: ResourceTask, Action: ActionUnassign, RequiredRoles: taskManagers, OwnerExempt: true},

		Rule{Resource: ResourceAudit, Action: ActionRead, RequiredRoles: admins},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns a copy of the rule for (resource, action).
func (t *Table) Lookup(resource ResourceType, action Action) (Rule, bool) {
	i, ok := t.index[ruleKey{resource, action}]
	if !ok {
		return Rule{}, false
	}
	r := t.rules[i]
	r.RequiredRoles = slices.Clone(r.RequiredRoles)
	return r, true
}

// Rules returns a copy of every rule in declaration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		r.RequiredRoles = slices.Clone(r.RequiredRoles)
		out[i] = r
	}
	return out
}
