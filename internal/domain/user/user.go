package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPending:
		return true
	default:
		return false
	}
}

type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	PasswordHash  *string    `json:"-"` // never expose hash in JSON
	Role          Role       `json:"role"`
	Status        Status     `json:"status"`
	EmailVerified *time.Time `json:"emailVerified"`
	Name          string     `json:"name,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	DeletedAt     *time.Time `json:"-"`
}

func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u User) IsDeleted() bool {
	return u.DeletedAt != nil
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already taken")
	ErrUsernameTaken = errors.New("username already taken")
)

// NewUser is what the stores persist; the caller has already hashed the password.
type NewUser struct {
	Email        string
	Username     string
	PasswordHash *string
	Role         Role
	Status       Status
	Name         string
	Avatar       string
	Note         string
}

// Build assigns identity and timestamps. Username falls back to the email.
func (n NewUser) Build(now time.Time) User {
	username := strings.TrimSpace(n.Username)
	if username == "" {
		username = n.Email
	}
	role := n.Role
	if role == "" {
		role = RoleUser
	}
	status := n.Status
	if status == "" {
		status = StatusActive
	}

	return User{
		ID:           uuid.NewString(),
		Email:        n.Email,
		Username:     username,
		PasswordHash: n.PasswordHash,
		Role:         role,
		Status:       status,
		Name:         n.Name,
		Avatar:       n.Avatar,
		Note:         n.Note,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Patch holds the mutable columns of a user. Nil fields are left untouched.
// Username is deliberately absent: it is fixed at creation.
type Patch struct {
	Email         *string
	PasswordHash  *string
	Name          *string
	Avatar        *string
	Note          *string
	Role          *Role
	Status        *Status
	EmailVerified *time.Time
}

func (p Patch) Apply(u User, now time.Time) User {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		h := *p.PasswordHash
		u.PasswordHash = &h
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Note != nil {
		u.Note = *p.Note
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.EmailVerified != nil {
		v := *p.EmailVerified
		u.EmailVerified = &v
	}
	u.UpdatedAt = now
	return u
}

// sortable columns for list queries; keys are API names, values are column names.
var SortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"email":     "email",
	"username":  "username",
	"name":      "name",
	"role":      "role",
}

type ListFilter struct {
	Name     *string
	Role     *Role
	Search   string
	SortBy   string
	SortDesc bool
	Limit    int
	Page     int
}

func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Listed is a user row decorated with its session view.
type Listed struct {
	User
	LastSeen *int64 `json:"lastSeen,omitempty"`
}
