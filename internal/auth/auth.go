// Package auth derives the acting user from a request and enforces ownership.
package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid identity acting on something it does not own.
	ErrForbidden = errors.New("forbidden")
)

type userKey struct{}

// IdentityResolver maps a bearer credential to a user id.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, token string) (string, error)
}

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the authenticated user id, if present.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok && userID != ""
}

// RequireUser fails with ErrUnauthorized when no identity is present.
func RequireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthorized
	}
	return nil
}

// CheckOwner fails with ErrForbidden unless userID owns the resource.
func CheckOwner(ownerID, userID string) error {
	if err := RequireUser(userID); err != nil {
		return err
	}
	if ownerID != userID {
		return ErrForbidden
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// ChainResolver tries each resolver in order and returns the first match.
type ChainResolver []IdentityResolver

// ResolveUser implements IdentityResolver.
func (c ChainResolver) ResolveUser(ctx context.Context, token string) (string, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		userID, err := r.ResolveUser(ctx, token)
		if err == nil && userID != "" {
			return userID, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", ErrUnauthorized
}
