package enums

import "fmt"

// UserRole determines pricing tier and which administrative surfaces a user may touch.
type UserRole string

const (
	UserRoleRetailer   UserRole = "retailer"
	UserRoleWholesaler UserRole = "wholesaler"
	UserRoleAdmin      UserRole = "admin"
	UserRoleOwner      UserRole = "owner"
)

var validUserRoles = []UserRole{
	UserRoleRetailer,
	UserRoleWholesaler,
	UserRoleAdmin,
	UserRoleOwner,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role may perform administrative mutations.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAdmin || r == UserRoleOwner
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
