package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCounselor  = "counselor"
	RoleSupervisor = "supervisor"
	RoleIntake     = "intake" // service role used by the intake pipeline
)

// IsSupervisor reports whether role may use every route.
func IsSupervisor(role string) bool { return role == RoleSupervisor }

// IsServiceRole reports roles that belong to machines, not people.
func IsServiceRole(role string) bool { return role == RoleIntake }
