package model

import (
	"errors"
	"strings"
	"time"
)

// User represents an account. Follower and following sets live in the
// follows table; the counters are maintained in the same transaction as
// every edge change.
type User struct {
	ID             int64      `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	Email          string     `db:"email" json:"email"`
	PasswordHashed string     `db:"password_hashed" json:"-"`
	Bio            *string    `db:"bio" json:"bio"`
	AvatarURL      *string    `db:"avatar_url" json:"avatar_url"`
	AvatarKey      *string    `db:"avatar_key" json:"-"`
	DOB            *time.Time `db:"dob" json:"dob,omitempty"`
	Gender         *string    `db:"gender" json:"gender,omitempty"`
	IsPrivate      bool       `db:"is_private" json:"is_private"`
	FollowerCount  int        `db:"follower_count" json:"follower_count"`
	FollowingCount int        `db:"following_count" json:"following_count"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Summary returns the presentable subset of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// Profile is a user page as seen by a particular viewer. The lists are
// omitted when the viewer may not see a private account's content.
type Profile struct {
	User
	FollowStatus FollowStatus  `json:"follow_status"`
	Restricted   bool          `json:"restricted"`
	Followers    []UserSummary `json:"followers"`
	Following    []UserSummary `json:"following"`
	Tweets       []Tweet       `json:"tweets"`
}

type SignupRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Bio      *string `json:"bio,omitempty"`
	DOB      *string `json:"dob,omitempty"`
	Gender   *string `json:"gender,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest carries optional profile edits. Nil fields are left unchanged.
type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	DOB       *string `json:"dob,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	AvatarURL *string `json:"-"`
	AvatarKey *string `json:"-"`
}

type PrivacyRequest struct {
	IsPrivate bool `json:"is_private"`
}

type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// User constraints
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 6
	MaxBioLength      = 160
	SearchLimit       = 10
	DateLayout        = "2006-01-02"
)

var genders = map[string]struct{}{
	"Male":              {},
	"Female":            {},
	"Other":             {},
	"Prefer not to say": {},
}

// IsValidGender reports whether g is one of the accepted gender values.
func IsValidGender(g string) bool {
	_, ok := genders[g]
	return ok
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	ErrUserNotFound       = errors.New("User not found")
	ErrUsernameExists     = errors.New("Username or email already exists")
	ErrUsernameTaken      = errors.New("Username already taken")
	ErrInvalidCredentials = errors.New("Invalid credentials")
)
