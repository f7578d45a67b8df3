package domain

type Role string

const (
	// RoleUser is assigned at registration.
	RoleUser Role = "user"
	// RoleAdmin may list, edit and delete any user.
	RoleAdmin Role = "admin"
)

func IsValidRole(r string) bool {
	return r == string(RoleUser) || r == string(RoleAdmin)
}

// RoleRank: bigger => higher privilege
func RoleRank(r Role) int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}

// Session is the authenticated caller attached to a request.
type Session struct {
	UserID string
	Role   Role
}

// Authorize is the single capability check for role gated routes.
func Authorize(s Session, required Role) error {
	if s.UserID == "" {
		return ErrTokenMissing()
	}
	if RoleRank(s.Role) < RoleRank(required) {
		return ErrInsufficientRole(required)
	}
	return nil
}
