package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eldercare/eldercare/internal/platform/auth"
)

// User is an account that can log in: administrators, care staff and family
// members of residents.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Phone        *string   `json:"phone,omitempty"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var validRoles = map[string]bool{
	auth.RoleAdmin:  true,
	auth.RoleStaff:  true,
	auth.RoleFamily: true,
}

// UserFilter selects users for Search. Zero values match everything.
type UserFilter struct {
	Role   string
	Active *bool
	Query  string // case-insensitive substring of email or full name
	Limit  int
	Offset int
}

// Match reports whether u satisfies the filter.
func (f UserFilter) Match(u *User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Active != nil && u.IsActive != *f.Active {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(u.Email), q) && !strings.Contains(strings.ToLower(u.FullName), q) {
			return false
		}
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
