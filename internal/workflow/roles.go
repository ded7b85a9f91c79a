package workflow

import (
	"slices"
	"sort"

	"correction-workflow/internal/domain"
)

// RoleResolver translates between canonical workflow roles and the user-role
// spellings found on user records. Names it has never seen map to themselves.
type RoleResolver struct {
	userRoles     map[string][]string
	workflowRoles map[string][]string
}

func NewRoleResolver(mapping domain.RoleMapping) *RoleResolver {
	r := &RoleResolver{
		userRoles:     make(map[string][]string, len(mapping)),
		workflowRoles: make(map[string][]string),
	}
	for workflowRole, spellings := range mapping {
		names := appendUnique([]string{workflowRole}, spellings...)
		r.userRoles[workflowRole] = names
		for _, name := range names {
			r.workflowRoles[name] = appendUnique(r.workflowRoles[name], workflowRole)
		}
	}
	for name := range r.workflowRoles {
		sort.Strings(r.workflowRoles[name])
	}
	return r
}

func (r *RoleResolver) UsersFor(workflowRole string) []string {
	if names, ok := r.userRoles[workflowRole]; ok {
		return slices.Clone(names)
	}
	return []string{workflowRole}
}

func (r *RoleResolver) WorkflowRolesFor(userRole string) []string {
	if roles, ok := r.workflowRoles[userRole]; ok {
		return slices.Clone(roles)
	}
	return []string{userRole}
}

// Expand returns every user-role name that satisfies required. required may
// itself be a historical spelling rather than the canonical name.
func (r *RoleResolver) Expand(required string) []string {
	var out []string
	for _, workflowRole := range r.WorkflowRolesFor(required) {
		out = appendUnique(out, r.UsersFor(workflowRole)...)
	}
	return out
}

func (r *RoleResolver) Satisfies(userRole, required string) bool {
	if userRole == "" {
		return false
	}
	return slices.Contains(r.Expand(required), userRole)
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" || slices.Contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}
