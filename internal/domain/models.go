// Package domain provides the core types shared across minerva modules.
package domain

import (
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// Category is the budget category.
type Category string

const (
	CategoryCAPEX Category = "CAPEX"
	CategoryOPEX  Category = "OPEX"
)

// Categories lists valid budget categories.
var Categories = []string{string(CategoryCAPEX), string(CategoryOPEX)}

// Status is the active/inactive flag used by budgets.
type Status string

const (
	StatusActive   Status = "ATIVO"
	StatusInactive Status = "INATIVO"
)

// UserRef is the compact user rendering used for audit fields.
type UserRef struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Audit carries creation and update metadata for mutable records.
type Audit struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy *UserRef  `json:"created_by"`
	UpdatedBy *UserRef  `json:"updated_by"`
}

// Ref is a compact rendering of a related record.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// OneOf reports whether value is one of choices.
func OneOf(value string, choices []string) bool {
	for _, c := range choices {
		if value == c {
			return true
		}
	}
	return false
}

// ValidateChoice records an error when value is set and not in choices.
func ValidateChoice(v *ValidationError, field, value string, choices []string) {
	if value == "" {
		return
	}
	if !OneOf(value, choices) {
		v.Add(field, `"`+value+`" is not a valid choice.`)
	}
}

// ValidateMaxLength records an error when s is longer than n runes.
func ValidateMaxLength(v *ValidationError, field, s string, n int) {
	if len([]rune(s)) > n {
		v.Add(field, "Ensure this field has no more than "+strconv.Itoa(n)+" characters.")
	}
}

// ValidateRequired records an error when s is blank.
func ValidateRequired(v *ValidationError, field, s string) {
	if strings.TrimSpace(s) != "" {
		return
	}
	v.Add(field, "This field may not be blank.")
}

// ListParams are the common list query parameters.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	Ordering string
}

// Offset returns the row offset for the page.
func (p ListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size, defaulting to 10.
func (p ListParams) Limit() int {
	if p.PageSize <= 0 {
		return 10
	}
	return p.PageSize
}

// ValidateEmail records an error when s is not a bare e-mail address.
func ValidateEmail(v *ValidationError, field, s string) {
	if s == "" {
		v.Add(field, "This field may not be blank.")
		return
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@")+1:], ".") {
		v.Add(field, "Enter a valid email address.")
	}
}
