// Package auth resolves who is asking for an operation and whether their
// role may trigger queue processing.
package auth

import "context"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
	RoleSystem   Role = "system"
)

// Identity is the authenticated caller of an operation.
type Identity struct {
	Subject string
	Role    Role
}

// SystemIdentity is used by the scheduler and by restock-triggered runs,
// which act on behalf of the service itself.
var SystemIdentity = Identity{Subject: "system", Role: RoleSystem}

// Anonymous is the zero identity of an unauthenticated caller.
var Anonymous = Identity{}

// Privileged reports whether the role may run administrative operations.
func (i Identity) Privileged() bool {
	switch i.Role {
	case RoleAdmin, RoleStaff, RoleSystem:
		return true
	}
	return false
}

// CanDispatch reports whether id may trigger queue processing.
func CanDispatch(id Identity) bool {
	return id.Subject != "" && id.Privileged()
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the middleware, or Anonymous.
func FromContext(ctx context.Context) Identity {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok {
		return Anonymous
	}
	return id
}
