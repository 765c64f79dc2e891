package session

import (
	"time"

	"github.com/trezcool/shule/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

	rolePriorities = map[string]int{
		RoleAdmin:   4,
		RoleTeacher: 3,
		RoleParent:  2,
		RoleStudent: 1,
	}

	// roleHomes maps each role to its portal area.
	roleHomes = map[string]string{
		RoleAdmin:   "/admin",
		RoleTeacher: "/teacher",
		RoleStudent: "/student",
		RoleParent:  "/parent",
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxPriorityRole(roles []string) string {
	var max string
	for _, role := range roles {
		if RolePriority(role) > RolePriority(max) {
			max = role
		}
	}
	return max
}

// RoleHome returns the portal area a role lands on after authenticating.
func RoleHome(role string) string {
	if home, ok := roleHomes[role]; ok {
		return home
	}
	return "/"
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the authenticated principal as reported by the backend.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	Roles     []string  `json:"roles"`
	LastLogin time.Time `json:"last_login"` // UTC
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.HasRole(RoleAdmin) }
func (u *User) IsTeacher() bool { return u.HasRole(RoleTeacher) }
func (u *User) IsStudent() bool { return u.HasRole(RoleStudent) }
func (u *User) IsParent() bool  { return u.HasRole(RoleParent) }

// Session is the client-held record of the current authenticated user and
// their active role context. IsAuthenticated is true iff User is present;
// SelectedRole, when set, belongs to User.Roles.
type Session struct {
	User            *User  `json:"user"`
	IsAuthenticated bool   `json:"is_authenticated"`
	SelectedRole    string `json:"selected_role,omitempty"`
	HasHydrated     bool   `json:"-"` // runtime-only, never persisted
}

// RedirectTarget resolves where the user lands after authenticating:
// the selected role's area, the sole role's area for single-role accounts,
// or the role selection step for multi-role accounts.
func (s *Session) RedirectTarget() string {
	if !s.IsAuthenticated || s.User == nil {
		return "/"
	}
	if s.SelectedRole != "" {
		return RoleHome(s.SelectedRole)
	}
	if len(s.User.Roles) == 1 {
		return RoleHome(s.User.Roles[0])
	}
	return "/auth/select-role"
}

// NeedsRoleSelection reports whether a role selection step is required before
// any role-scoped area can be entered.
func (s *Session) NeedsRoleSelection() bool {
	return s.IsAuthenticated && s.User != nil && len(s.User.Roles) > 1 && s.SelectedRole == ""
}

// State is the durable snapshot of a Session. Runtime-only fields (hydration,
// loading, errors) are deliberately excluded.
type State struct {
	ClientID        string    `json:"client_id"`
	User            *User     `json:"user"`
	IsAuthenticated bool      `json:"is_authenticated"`
	SelectedRole    string    `json:"selected_role,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate Validator) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	return validate.Struct(c)
}

// RoleSelection is the role selection payload.
type RoleSelection struct {
	Role string `json:"role" validate:"required,portalrole"`
}

func (rs *RoleSelection) Validate(validate Validator) error {
	rs.Role = core.CleanString(rs.Role, true /* lower */)
	return validate.Struct(rs)
}

// Validator is the subset of validator.Validate used by payload validation.
type Validator interface {
	Struct(s interface{}) error
}
