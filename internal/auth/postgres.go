package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Users maps User onto the users table.
var Users = newUsersTable()

func newUsersTable() *pg.Table[User] {
	t := pg.NewTable("users", func(u *User) *pg.Model { return &u.Model },
		pg.Mutable("username", func(u *User) *string { return &u.Username }),
		pg.Mutable("email", func(u *User) *string { return &u.Email }),
		pg.Mutable("full_name", func(u *User) *string { return &u.FullName }),
		pg.Mutable("password_hash", func(u *User) *string { return &u.PasswordHash }),
		pg.Mutable("role", func(u *User) *Role { return &u.Role }),
		pg.Optional("contact", func(u *User) **string { return &u.Contact }),
		pg.Optional("gender", func(u *User) **string { return &u.Gender }),
	)
	t.Search = []string{"username", "email", "full_name"}
	t.Check = (*User).Validate
	return t
}

var _ UserStore = (*PGStore)(nil)

// PGStore implements UserStore using PostgreSQL.
type PGStore struct {
	repo *pg.Repository[User]
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{repo: pg.NewRepository(db, Users)}
}

// Repository exposes the generic repository for admin user management.
func (s *PGStore) Repository() *pg.Repository[User] { return s.repo }

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.Get(ctx, id)
}

func (s *PGStore) ByUsername(ctx context.Context, username string) (*User, error) {
	found, err := s.repo.ListByTx(ctx, s.repo.DB(), "username", username)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (s *PGStore) Create(ctx context.Context, u *User) (*User, error) {
	return s.repo.Create(ctx, u)
}

// NewUserInput is the admin payload for creating an account.
type NewUserInput struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Password string  `json:"password"`
	Role     Role    `json:"role"`
	Contact  *string `json:"contact"`
	Gender   *string `json:"gender"`
}

// NewUser builds a User with a hashed password.
func NewUser(in NewUserInput) (*User, error) {
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	return &User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         in.Role,
		Contact:      in.Contact,
		Gender:       in.Gender,
	}, nil
}

// PreparePatch hashes a plain "password" into password_hash. Clients may
// not send password_hash themselves.
func PreparePatch(p pg.Patch) error {
	if _, ok := p["password_hash"]; ok {
		return fmt.Errorf("%w: unknown or read-only field %q", pg.ErrInvalidPatch, "password_hash")
	}
	raw, ok := p.Take("password")
	if !ok {
		return nil
	}
	var password string
	if err := json.Unmarshal(raw, &password); err != nil || password == "" {
		return fmt.Errorf("%w: password must be a non-empty string", pg.ErrInvalidPatch)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return p.Set("password_hash", hash)
}
