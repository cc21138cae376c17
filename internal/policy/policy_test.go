package policy

import (
	"net/http"
	"testing"

	"schoolcore/internal/model"
)

func TestFirstMatchWins(t *testing.T) {
	table := NewTable([]Rule{
		{Method: http.MethodGet, Pattern: "/attendance/student/*", Access: AnyAuthenticated},
		{Pattern: "/attendance*", Access: RoleSet, Roles: []model.Role{model.RoleTeacher}},
	})

	rule := table.Evaluate(http.MethodGet, "/attendance/student/abc")
	if rule.Access != AnyAuthenticated {
		t.Fatalf("expected the specific rule to win, got %+v", rule)
	}

	rule = table.Evaluate(http.MethodPost, "/attendance")
	if rule.Access != RoleSet || !rule.Allows(model.RoleTeacher) {
		t.Fatalf("expected the broad attendance rule, got %+v", rule)
	}
}

func TestUnmatchedDefaultsToAnyAuthenticated(t *testing.T) {
	table := NewTable(nil)
	rule := table.Evaluate(http.MethodGet, "/whatever")
	if rule.Access != AnyAuthenticated {
		t.Fatalf("expected AnyAuthenticated fallback, got %+v", rule)
	}
}

func TestMethodRestriction(t *testing.T) {
	table := NewTable([]Rule{
		{Method: http.MethodPost, Pattern: "/students", Access: RoleSet, Roles: []model.Role{model.RolePrincipal}},
		{Pattern: "/students*", Access: RoleSet, Roles: []model.Role{model.RoleTeacher}},
	})

	if rule := table.Evaluate(http.MethodPost, "/students"); !rule.Allows(model.RolePrincipal) {
		t.Fatalf("expected POST rule, got %+v", rule)
	}
	if rule := table.Evaluate(http.MethodGet, "/students"); !rule.Allows(model.RoleTeacher) {
		t.Fatalf("expected GET to fall through to the broad rule, got %+v", rule)
	}
}

func TestRoleSetsAreExplicit(t *testing.T) {
	table := Default()

	// Tenant administration is reserved to the top role; no other role is
	// implied by rank.
	rule := table.Evaluate(http.MethodPost, "/schools")
	if rule.Access != RoleSet {
		t.Fatalf("expected role rule for /schools, got %+v", rule)
	}
	if !rule.Allows(model.RoleSuperAdmin) {
		t.Fatalf("expected SUPER_ADMIN on /schools")
	}
	for _, role := range []model.Role{model.RolePrincipal, model.RoleTeacher, model.RoleStudent, model.RoleParent} {
		if rule.Allows(role) {
			t.Fatalf("role %s must not be allowed on /schools", role)
		}
	}

	// Attendance marking permits exactly the staff set.
	rule = table.Evaluate(http.MethodPost, "/attendance")
	for _, role := range []model.Role{model.RoleSuperAdmin, model.RolePrincipal, model.RoleTeacher} {
		if !rule.Allows(role) {
			t.Fatalf("role %s must be allowed on POST /attendance", role)
		}
	}
	if rule.Allows(model.RoleStudent) || rule.Allows(model.RoleParent) {
		t.Fatalf("students and parents must not mark attendance")
	}

	// Reading a student's attendance is open to any authenticated identity.
	if rule := table.Evaluate(http.MethodGet, "/attendance/student/some-id"); rule.Access != AnyAuthenticated {
		t.Fatalf("expected AnyAuthenticated for attendance reads, got %+v", rule)
	}
}

func TestPublicRoutes(t *testing.T) {
	table := Default()
	for _, path := range []string{"/auth/login", "/auth/register", "/auth/logout"} {
		if rule := table.Evaluate(http.MethodPost, path); rule.Access != Public {
			t.Fatalf("expected %s to be public, got %+v", path, rule)
		}
	}
	if rule := table.Evaluate(http.MethodGet, "/health"); rule.Access != Public {
		t.Fatalf("expected /health to be public, got %+v", rule)
	}
	// /auth/me is not in the public set; it falls back to AnyAuthenticated.
	if rule := table.Evaluate(http.MethodGet, "/auth/me"); rule.Access != AnyAuthenticated {
		t.Fatalf("expected /auth/me to require authentication, got %+v", rule)
	}
}
