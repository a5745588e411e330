package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/redis"
	"github.com/chatmod/chatmod/internal/store"
	"go.uber.org/zap"
)

// CandidatePaths are the remote locations tried in order when loading the
// policy document. Older deployments used the German file name.
var CandidatePaths = []string{
	"config/rules.json",
	"data/regeln.json",
}

// CanonicalPath is the single path every save targets.
const CanonicalPath = "config/rules.json"

// GenerationKey is the Redis key carrying the cross-instance policy version.
const GenerationKey = "policy:generation"

// Store serves the policy configuration with an internal cache. Saves write
// to the authoritative remote store first; a save that cannot reach it is
// reported as ErrRemoteUnavailable but the in-memory and mirrored state are
// already updated.
type Store struct {
	docs       *store.Documents
	generation *redis.Generation
	logger     *zap.Logger

	mu        sync.RWMutex
	cached    *Config
	cachedGen int64
}

// NewStore creates a policy store. The generation counter is optional; without
// it the cache is only invalidated explicitly.
func NewStore(docs *store.Documents, generation *redis.Generation, logger *zap.Logger) *Store {
	return &Store{
		docs:       docs,
		generation: generation,
		logger:     logger.Named("policy_store"),
	}
}

// Get returns the current policy configuration, loading it on first use and
// re-loading when another instance has saved a newer version.
func (s *Store) Get(ctx context.Context) (*Config, error) {
	s.mu.RLock()
	cached := s.cached
	cachedGen := s.cachedGen
	s.mu.RUnlock()

	if cached != nil && s.isFresh(ctx, cachedGen) {
		return cached, nil
	}

	return s.Refresh(ctx)
}

// Refresh discards the cache and loads the policy from the store.
func (s *Store) Refresh(ctx context.Context) (*Config, error) {
	content, err := s.docs.Load(ctx, CandidatePaths)

	var cfg Config

	switch {
	case err == nil:
		if err := sonic.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse policy document: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
		// First run: start from defaults only
		s.logger.Info("No policy document found, starting from defaults")
	default:
		return nil, err
	}

	cfg.MergeDefaults()

	gen := s.currentGeneration(ctx)

	s.mu.Lock()
	s.cached = &cfg
	s.cachedGen = gen
	s.mu.Unlock()

	return &cfg, nil
}

// Invalidate drops the cached configuration.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Save persists the configuration. The returned error is ErrRemoteUnavailable
// when only the remote write failed; callers surface that as a warning, not a
// failure, because local state is already consistent.
func (s *Store) Save(ctx context.Context, cfg *Config) error {
	cfg.MergeDefaults()

	content, err := sonic.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal policy document: %w", err)
	}

	saveErr := s.docs.Save(ctx, CanonicalPath, content, "Update moderation rules")

	gen := s.bumpGeneration(ctx)

	s.mu.Lock()
	s.cached = cfg
	s.cachedGen = gen
	s.mu.Unlock()

	return saveErr
}

// isFresh reports whether the cached generation still matches Redis. Redis
// being unreachable counts as fresh so a cache outage never blocks requests.
func (s *Store) isFresh(ctx context.Context, cachedGen int64) bool {
	if s.generation == nil {
		return true
	}

	current, err := s.generation.Current(ctx)
	if err != nil {
		s.logger.Warn("Failed to read policy generation, serving cached config", zap.Error(err))
		return true
	}

	return current == cachedGen
}

func (s *Store) currentGeneration(ctx context.Context) int64 {
	if s.generation == nil {
		return 0
	}

	gen, err := s.generation.Current(ctx)
	if err != nil {
		s.logger.Warn("Failed to read policy generation", zap.Error(err))
		return 0
	}

	return gen
}

func (s *Store) bumpGeneration(ctx context.Context) int64 {
	if s.generation == nil {
		return 0
	}

	gen, err := s.generation.Bump(ctx)
	if err != nil {
		s.logger.Warn("Failed to bump policy generation", zap.Error(err))
		return 0
	}

	return gen
}
