package auth

// Role is the authorization tier carried in the session token's role claim.
type Role string

const (
	RoleCitizen  Role = "ciudadano"
	RoleOfficial Role = "funcionario"
	RoleAdmin    Role = "admin"
)

// Capability names an action that some roles may perform.
type Capability int

const (
	CapPost Capability = iota
	CapPin
	CapDashboard
)

var capabilities = map[Role]map[Capability]bool{
	RoleCitizen:  {CapPost: true, CapPin: true},
	RoleOfficial: {CapPost: true, CapPin: true, CapDashboard: true},
	RoleAdmin:    {CapPost: true, CapPin: true, CapDashboard: true},
}

// ParseRole accepts only the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if _, ok := capabilities[r]; !ok {
		return "", false
	}
	return r, true
}

// NormalizeRole maps an absent or unrecognised claim to the citizen role.
func NormalizeRole(s string) Role {
	if r, ok := ParseRole(s); ok {
		return r
	}
	return RoleCitizen
}

func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

func (r Role) String() string {
	return string(r)
}
