package auth

import (
	"context"

	"github.com/workmate-hq/workmate/internal/model"
)

// LocalDevAPIKey is the fallback key accepted when no key is configured.
// Local development only.
const LocalDevAPIKey = "sk_local_workmate_dev_key"

// MockAuthorizer accepts a single configured API key and resolves it to a
// fixed dev user.
type MockAuthorizer struct {
	key string
}

// NewMockAuthorizer creates a MockAuthorizer. An empty key falls back to
// LocalDevAPIKey.
func NewMockAuthorizer(key string) *MockAuthorizer {
	if key == "" {
		key = LocalDevAPIKey
	}
	return &MockAuthorizer{key: key}
}

func (m *MockAuthorizer) Authorize(ctx context.Context, apiKey string) (*model.UserContext, error) {
	if apiKey != m.key {
		return nil, ErrUnauthorized
	}
	return &model.UserContext{
		UserID:      "workmate-dev",
		DisplayName: "Dev User",
		Role:        "employee",
	}, nil
}
