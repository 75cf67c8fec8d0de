package auth

import (
	"context"
)

// GroupPresident is the group whose members see every record.
const GroupPresident = "Presidente"

// Principal is the authenticated user attached to a request.
type Principal struct {
	UserID      int64
	Email       string
	IsStaff     bool
	IsSuperuser bool
	IsActive    bool
	EmployeeID  *int64
	Groups      []string
}

// InGroup reports whether the principal belongs to group.
func (p *Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal, or nil for anonymous requests.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// UserID returns the principal's id or 0.
func UserID(ctx context.Context) int64 {
	if p := FromContext(ctx); p != nil {
		return p.UserID
	}
	return 0
}
