// Package policy holds the route authorization table. The table is built
// once at start-up and never mutated; evaluation takes the first matching
// rule in registration order, so more specific patterns must be registered
// before broader ones. The table governs role capability only. Tenant
// isolation is a separate check performed by every tenant-scoped data
// operation.
package policy

import (
	"strings"

	"schoolcore/internal/model"
)

type Access int

const (
	// Public routes need no identity at all.
	Public Access = iota
	// AnyAuthenticated routes accept every valid identity regardless of role.
	AnyAuthenticated
	// RoleSet routes accept only the roles enumerated on the rule.
	RoleSet
)

type Rule struct {
	// Method restricts the rule to one HTTP method; empty matches all.
	Method string
	// Pattern is an exact path, or a prefix when it ends with '*'.
	Pattern string
	Access  Access
	Roles   []model.Role
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	if strings.HasSuffix(r.Pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(r.Pattern, "*"))
	}
	return path == r.Pattern
}

// Allows reports whether role is in the rule's permitted set. Only
// meaningful for RoleSet rules; there is no role hierarchy.
func (r Rule) Allows(role model.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

type Table struct {
	rules []Rule
}

func NewTable(rules []Rule) *Table {
	return &Table{rules: rules}
}

// Evaluate returns the first rule matching (method, path). Unmatched routes
// default to AnyAuthenticated.
func (t *Table) Evaluate(method, path string) Rule {
	for _, rule := range t.rules {
		if rule.matches(method, path) {
			return rule
		}
	}
	return Rule{Access: AnyAuthenticated}
}

// Default is the process-wide table. Order matters: the attendance read
// route must precede the broader attendance rule, and the single-student
// read must precede the student management rules.
func Default() *Table {
	superAdmin := []model.Role{model.RoleSuperAdmin}
	administrative := []model.Role{model.RoleSuperAdmin, model.RolePrincipal}
	staff := []model.Role{model.RoleSuperAdmin, model.RolePrincipal, model.RoleTeacher}

	return NewTable([]Rule{
		{Method: "POST", Pattern: "/auth/register", Access: Public},
		{Method: "POST", Pattern: "/auth/login", Access: Public},
		{Method: "POST", Pattern: "/auth/logout", Access: Public},
		{Pattern: "/health", Access: Public},
		{Pattern: "/metrics", Access: Public},
		{Pattern: "/public/*", Access: Public},

		{Pattern: "/schools*", Access: RoleSet, Roles: superAdmin},

		{Method: "GET", Pattern: "/attendance/student/*", Access: AnyAuthenticated},
		{Pattern: "/attendance*", Access: RoleSet, Roles: staff},
		{Pattern: "/exams*", Access: RoleSet, Roles: staff},

		{Pattern: "/teachers*", Access: RoleSet, Roles: administrative},

		{Method: "POST", Pattern: "/students", Access: RoleSet, Roles: administrative},
		{Method: "DELETE", Pattern: "/students/*", Access: RoleSet, Roles: administrative},
		{Method: "GET", Pattern: "/students/*", Access: AnyAuthenticated},
		{Pattern: "/students*", Access: RoleSet, Roles: staff},
	})
}
