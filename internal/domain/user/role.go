package user

import (
	"encoding/json"
	"fmt"
)

// Role is the access level stored on a user row. The zero value is
// RoleUnset, which is distinct from an explicit member role.
type Role uint8

const (
	RoleUnset Role = iota
	RoleMember
	RoleAdmin
)

// DefaultRole is assigned to every row created through sign-up or a first
// provider sign-in.
const DefaultRole = RoleMember

func ParseRole(s string) (Role, error) {
	switch s {
	case "member":
		return RoleMember, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnset, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	default:
		return ""
	}
}

func (r Role) IsSet() bool { return r != RoleUnset }

func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Nullable returns the value to store in a nullable text column.
func (r Role) Nullable() *string {
	if !r.IsSet() {
		return nil
	}
	s := r.String()
	return &s
}

// RoleFromNullable is the inverse of Nullable.
func RoleFromNullable(s *string) (Role, error) {
	if s == nil {
		return RoleUnset, nil
	}
	return ParseRole(*s)
}

// MarshalJSON writes an unset role as null rather than omitting it.
func (r Role) MarshalJSON() ([]byte, error) {
	if !r.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = RoleUnset
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
