package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Role is the single role carried by a user and its tokens.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleModerator:
		return true
	}
	return false
}

// User is an account that can sign in.
type User struct {
	pg.Model
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	PasswordHash string  `json:"-"`
	Role         Role    `json:"role"`
	Contact      *string `json:"contact"`
	Gender       *string `json:"gender"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Validate normalizes u and checks the account rules shared by every write.
func (u *User) Validate() error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FullName = strings.TrimSpace(u.FullName)
	if u.Role == "" {
		u.Role = RoleUser
	}
	switch {
	case u.Username == "" || len(u.Username) > 50:
		return fmt.Errorf("%w: username must be 1 to 50 characters", pg.ErrValidation)
	case !validEmail(u.Email):
		return fmt.Errorf("%w: email is not valid", pg.ErrValidation)
	case !u.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", pg.ErrValidation, u.Role)
	case u.PasswordHash == "":
		return fmt.Errorf("%w: password is required", pg.ErrValidation)
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
