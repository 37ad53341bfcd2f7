package domain

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned by LookupUser for unknown external identities.
var ErrUserNotFound = errors.New("user not found")

// UserProfile is the stored record behind an external identity.
type UserProfile struct {
	ID         string // internal id
	ExternalID string // channel identity
	Name       string
	Onboarding OnboardingState
}

// AccountContext is the minimal slice of account data the handlers need.
type AccountContext struct {
	DefaultProjectID string
	ProjectName      string
	BudgetAmount     float64
	TotalSpent       float64
	CategoryTotals   map[string]float64
}

// Store is the persistence collaborator for the engine. Implementations
// must serialize onboarding reads/writes per user; the engine assumes
// at most one in-flight onboarding step per user.
type Store interface {
	LookupUser(ctx context.Context, externalID string) (*UserProfile, error)
	RegisterUser(ctx context.Context, externalID, name string) (*UserProfile, error)
	LoadAccountContext(ctx context.Context, userID string) (AccountContext, error)
	ApplyMutation(ctx context.Context, userID string, m Mutation) error
	PersistOnboardingState(ctx context.Context, userID string, state OnboardingState) error
}
