package models

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

// MinPasswordLength is enforced on creation and password change.
const MinPasswordLength = 8

// User is a staff account of the election office.
type User struct {
	ID           id.UserID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // bcrypt
	Name         string    `json:"name"`
	Role         id.Role   `json:"role"`
	Authority    string    `json:"authority,omitempty"`
	Team         string    `json:"team,omitempty"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateUserInput struct {
	Username  string
	Password  string
	Name      string
	Role      id.Role
	Authority string
	Team      string
	Email     string
	Phone     string
}

// NewUser validates in and hashes the password.
func NewUser(in CreateUserInput, now time.Time) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if !in.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid email address")
		}
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           id.NewUserID(),
		Username:     username,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		Authority:    in.Authority,
		Team:         in.Team,
		Email:        in.Email,
		Phone:        in.Phone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HashPassword enforces the length rule and returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "password cannot be hashed")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Actor returns the principal the user acts as.
func (u *User) Actor() id.Actor {
	return id.Actor{UserID: u.ID, Role: u.Role}
}
