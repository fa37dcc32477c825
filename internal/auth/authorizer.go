package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/workmate-hq/workmate/internal/model"
)

// Authorizer resolves an API key to the authenticated user. Identity
// management itself is external; this service only maps a verified key to a
// UserContext.
type Authorizer interface {
	Authorize(ctx context.Context, apiKey string) (*model.UserContext, error)
}

var ErrUnauthorized = errors.New("invalid or missing API key")

// ExtractAPIKey pulls the API key from the Authorization header, expecting
// "Bearer <api_key>".
func ExtractAPIKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid Authorization header format, expected 'Bearer <api_key>'")
	}
	return parts[1], nil
}
