package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleService = "service" // hidden role for machine clients
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// CanDial reports whether the role may own a calling session.
func CanDial(role string) bool {
	switch role {
	case RoleAgent, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}
