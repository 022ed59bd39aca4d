package auth

import "context"

// Principal is the authenticated caller as resolved from the account store.
type Principal struct {
	ID         string
	Email      string
	IsActive   bool
	IsVerified bool
}

// PrincipalResolver loads the current state of the user named by a token
// subject. It returns an error when the user no longer exists.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (*Principal, error)
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.ID
	}
	return ""
}
