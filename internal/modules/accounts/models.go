// Package accounts manages users, credentials and group membership.
package accounts

import "time"

// User is an account. The password hash never leaves the package.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	EmployeeID  *int64     `json:"employee"`
	Groups      []string   `json:"groups"`
	LastLogin   *time.Time `json:"last_login"`
	DateJoined  time.Time  `json:"date_joined"`

	passwordHash string
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// lastLoginOrZero feeds password-reset fingerprints.
func (u *User) lastLoginOrZero() time.Time {
	if u.LastLogin == nil {
		return time.Time{}
	}
	return *u.LastLogin
}

// LoginRequest accepts either email or username (an alias of email).
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest creates a self-service account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PasswordResetRequest starts a reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirm completes a reset.
type PasswordResetConfirm struct {
	UIDB64   string `json:"uidb64"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ChangePasswordRequest changes the caller's password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ProfileInput is the self-editable part of a user.
type ProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserInput is the staff-editable shape of a user.
type UserInput struct {
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	IsActive    *bool    `json:"is_active"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	EmployeeID  *int64   `json:"employee"`
	Groups      []string `json:"groups"`
}

// InputOf returns the staff-editable fields of u.
func InputOf(u *User) UserInput {
	active := u.IsActive
	return UserInput{
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsActive:    &active,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		EmployeeID:  u.EmployeeID,
		Groups:      u.Groups,
	}
}

// GroupsInput replaces a user's groups.
type GroupsInput struct {
	Groups []string `json:"groups"`
}

// ListFilter narrows user lists.
type ListFilter struct {
	IsActive *bool
	IsStaff  *bool
	Group    string
}

const maxNameLength = 150
