// Package actor carries the identity and capability of whoever is driving a
// lifecycle transition. Credential issuance happens upstream; this package
// only models what the state machines need to enforce their guards.
package actor

import "context"

// Role is the capability class of an actor.
type Role string

const (
	RolePatient   Role = "patient"
	RoleStaff     Role = "staff"
	RoleClinician Role = "clinician"
	RoleAdmin     Role = "admin"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// CanReview reports whether the actor may drive triage decisions on
// consultation requests.
func (a Actor) CanReview() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// CanFrontDesk reports whether the actor may perform front-desk operations
// (check-in, direct booking, cancellation on behalf of the clinic).
func (a Actor) CanFrontDesk() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// IsPatient reports whether the actor is the patient side of the engagement.
func (a Actor) IsPatient() bool {
	return a.Role == RolePatient
}

// IsClinician reports whether the actor is a clinician.
func (a Actor) IsClinician() bool {
	return a.Role == RoleClinician
}

type contextKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the actor stored on the context, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
