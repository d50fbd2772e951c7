// Package actor models the caller of a lead operation: who they are, which
// roles they hold and which pipelines they may see.
package actor

import (
	"slices"
	"sort"
)

// Default role names.
const (
	RoleAgent         = "Agent"
	RoleTeamLead      = "Team Leader"
	RoleSystemManager = "System Manager"

	// UserAdministrator is the built-in superuser id.
	UserAdministrator = "Administrator"
)

// Actor is a resolved caller.
type Actor struct {
	ID        string              `json:"id"`
	Roles     []string            `json:"roles"`
	Pipelines map[string]struct{} `json:"-"`
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// AllowsPipeline reports whether pipeline is on the actor's allow-list.
// An empty allow-list allows nothing.
func (a Actor) AllowsPipeline(pipeline string) bool {
	if len(a.Pipelines) == 0 {
		return false
	}
	_, ok := a.Pipelines[pipeline]
	return ok
}

// PipelineList returns the allow-list sorted.
func (a Actor) PipelineList() []string {
	out := make([]string, 0, len(a.Pipelines))
	for p := range a.Pipelines {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Policy maps role names onto the three classes the lead gate cares about.
type Policy struct {
	PrivilegedUsers []string
	PrivilegedRoles []string
	AgentRole       string
	TeamLeadRole    string
}

// DefaultPolicy returns the stock role mapping.
func DefaultPolicy() Policy {
	return Policy{
		PrivilegedUsers: []string{UserAdministrator},
		PrivilegedRoles: []string{RoleSystemManager},
		AgentRole:       RoleAgent,
		TeamLeadRole:    RoleTeamLead,
	}
}

// Privileged reports whether a bypasses every lead restriction.
func (p Policy) Privileged(a Actor) bool {
	if slices.Contains(p.PrivilegedUsers, a.ID) {
		return true
	}
	for _, r := range p.PrivilegedRoles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// TeamLead reports whether a holds the team lead role.
func (p Policy) TeamLead(a Actor) bool { return a.HasRole(p.TeamLeadRole) }

// Agent reports whether a holds the agent role.
func (p Policy) Agent(a Actor) bool { return a.HasRole(p.AgentRole) }

// CanManageAssignments reports whether a may assign, unassign or clear.
func (p Policy) CanManageAssignments(a Actor) bool {
	return p.Privileged(a) || p.TeamLead(a)
}
