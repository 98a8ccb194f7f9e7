package models

import "fmt"

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// rank orders roles by privilege. Unknown roles rank below RoleUser.
func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.rank() > 0 }

// Includes reports whether r grants at least the privileges of required.
func (r Role) Includes(required Role) bool {
	return r.Valid() && r.rank() >= required.rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
