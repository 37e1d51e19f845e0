package model

import "strings"

// Role names a CRM user role. Unknown roles are carried through unchanged.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOfficeStaff Role = "office_staff"
	RoleTechnician  Role = "technician"
	RoleCustomer    Role = "customer"
)

// User is the authenticated CRM user returned by GET /user and POST /login.
type User struct {
	ID    Identifier `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  Role       `json:"role"`
}

// HasRole reports whether the user carries one of the provided roles.
// Roles compare exactly.
func (user *User) HasRole(roles ...Role) bool {
	if user == nil {
		return false
	}
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	return false
}

// CanViewDashboardStats reports whether the stat grid is visible to the user.
func (user *User) CanViewDashboardStats() bool {
	return user.HasRole(RoleAdmin, RoleOfficeStaff)
}

// CanExport reports whether the user may download exports.
func (user *User) CanExport() bool {
	return user.HasRole(RoleAdmin)
}

// DisplayName returns the name shown in greetings.
func (user *User) DisplayName() string {
	if user == nil {
		return ""
	}
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	return strings.TrimSpace(user.Email)
}
