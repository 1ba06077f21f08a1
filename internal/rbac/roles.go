package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator" // dial, redial, reschedule
	RoleViewer   = "viewer"   // read-only
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Known reports whether role is one tokens may carry.
func Known(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// Readers and Dialers are the allow-lists used by the HTTP routes.
var (
	Readers = []string{RoleOperator, RoleViewer}
	Dialers = []string{RoleOperator}
)
