package auth

import "testing"

func TestParseRole(t *testing.T) {
	for _, s := range []string{"ciudadano", "funcionario", "admin"} {
		if r, ok := ParseRole(s); !ok || r.String() != s {
			t.Fatalf("expected %q to parse", s)
		}
	}
	for _, s := range []string{"", "Admin", "root"} {
		if _, ok := ParseRole(s); ok {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	if NormalizeRole("") != RoleCitizen {
		t.Fatalf("absent role should default to citizen")
	}
	if NormalizeRole("root") != RoleCitizen {
		t.Fatalf("unknown role should default to citizen")
	}
	if NormalizeRole("admin") != RoleAdmin {
		t.Fatalf("admin should stay admin")
	}
}

func TestCapabilities(t *testing.T) {
	if RoleCitizen.Can(CapDashboard) {
		t.Fatalf("citizen must not reach the dashboard")
	}
	if !RoleOfficial.Can(CapDashboard) || !RoleAdmin.Can(CapDashboard) {
		t.Fatalf("officials and admins reach the dashboard")
	}
	for _, r := range []Role{RoleCitizen, RoleOfficial, RoleAdmin} {
		if !r.Can(CapPost) || !r.Can(CapPin) {
			t.Fatalf("%s should post and pin", r)
		}
	}
	if Role("").Can(CapPost) {
		t.Fatalf("the empty role has no capabilities")
	}
}
