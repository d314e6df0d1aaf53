package config

import (
	"context"
	"sync"

	"review-orchestrator/internal/domain"
)

// StaticResolver serves the service-wide review configuration for every
// repository, with optional per-repository overrides registered at startup.
type StaticResolver struct {
	defaults domain.CodeReviewConfig

	mu        sync.RWMutex
	overrides map[string]domain.CodeReviewConfig // keyed by repository ID
}

// NewStaticResolver creates a resolver serving the given defaults.
func NewStaticResolver(defaults domain.CodeReviewConfig) *StaticResolver {
	return &StaticResolver{
		defaults:  defaults,
		overrides: make(map[string]domain.CodeReviewConfig),
	}
}

// SetOverride registers a per-repository configuration.
func (r *StaticResolver) SetOverride(repoID string, cfg domain.CodeReviewConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[repoID] = cfg
}

// Resolve returns the effective review configuration for the repository.
// The result is a copy; callers may mutate it freely.
func (r *StaticResolver) Resolve(_ context.Context, _ domain.OrganizationAndTeamData, repo domain.Repository) (*domain.CodeReviewConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := r.defaults
	if override, ok := r.overrides[repo.ID]; ok {
		cfg = override
	}
	return &cfg, nil
}
