package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/pkg/apperr"
)

// ErrInvalidCredentials is returned by Login for an unknown email, a wrong
// password or a deactivated account alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

const minPasswordLen = 8

type Service struct {
	users      UserRepository
	issuer     *auth.TokenIssuer
	bcryptCost int
}

func NewService(users UserRepository, issuer *auth.TokenIssuer) *Service {
	return &Service{users: users, issuer: issuer, bcryptCost: bcrypt.DefaultCost}
}

// CreateUserInput is the payload for a new account.
type CreateUserInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone,omitempty"`
	Role     string  `json:"role" validate:"required,oneof=admin staff family"`
}

// UpdateUserInput carries the fields to change; nil fields are left as-is.
type UpdateUserInput struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin staff family"`
	IsActive *bool   `json:"is_active,omitempty"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	verr := apperr.NewValidationError()
	email := normalizeEmail(in.Email)
	if email == "" {
		verr.Add("email", "is required")
	}
	if len(in.Password) < minPasswordLen {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if in.FullName == "" {
		verr.Add("full_name", "is required")
	}
	if !validRoles[in.Role] {
		verr.Add("role", "must be one of admin, staff, family")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email %s is already registered", email)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Phone:        in.Phone,
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]*User, int, error) {
	return s.users.Search(ctx, f)
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		if *in.FullName == "" {
			return nil, apperr.Invalid("full_name cannot be empty")
		}
		u.FullName = *in.FullName
	}
	if in.Phone != nil {
		u.Phone = in.Phone
	}
	if in.Role != nil {
		if !validRoles[*in.Role] {
			return nil, apperr.Invalid("unknown role %q", *in.Role)
		}
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLen {
			return nil, apperr.Invalid("password must be at least %d characters", minPasswordLen)
		}
		if u.PasswordHash, err = s.hash(*in.Password); err != nil {
			return nil, err
		}
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeactivateUser disables login for the account. Users are never removed
// because bills and messages reference them.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	inactive := false
	_, err := s.UpdateUser(ctx, id, UpdateUserInput{IsActive: &inactive})
	return err
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.issuer.Issue(u.ID.String(), u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

// Me returns the account behind the authenticated context.
func (s *Service) Me(ctx context.Context) (*User, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, apperr.NotFound("user")
	}
	return s.users.GetByID(ctx, id)
}

// EnsureAdmin creates an admin account, or promotes and re-activates an
// existing account with the same email and resets its password.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, fullName string) (*User, bool, error) {
	existing, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, apperr.ErrNotFound) {
		u, err := s.CreateUser(ctx, CreateUserInput{Email: email, Password: password, FullName: fullName, Role: auth.RoleAdmin})
		return u, true, err
	}
	if err != nil {
		return nil, false, err
	}
	role, active := auth.RoleAdmin, true
	u, err := s.UpdateUser(ctx, existing.ID, UpdateUserInput{Role: &role, IsActive: &active, Password: &password})
	return u, false, err
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
