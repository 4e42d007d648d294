// Package registry owns the published schema snapshot and rebuilds it when
// the schema version changes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mcncl/river-ls/internal/cache"
	"github.com/mcncl/river-ls/internal/parser"
	"github.com/mcncl/river-ls/internal/schema"
	"github.com/mcncl/river-ls/internal/source"
)

var (
	// ErrSuperseded is returned by a rebuild that a newer rebuild replaced
	// before it could publish.
	ErrSuperseded = errors.New("rebuild superseded")
	// ErrEmpty is returned when a version yields no components at all.
	ErrEmpty = errors.New("no components")
)

// Snapshot is one fully built registry. Snapshots are never modified.
type Snapshot struct {
	Version   string
	Registry  *schema.Registry
	BuiltAt   time.Time
	FromCache bool
}

// Store publishes schema snapshots. Readers call Snapshot; rebuilds run one
// at a time and only the newest one may publish.
type Store struct {
	source source.Source
	cache  *cache.Cache
	logger *zap.Logger

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64

	buildMu  sync.Mutex
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a store. c may be nil to disable caching.
func New(src source.Source, c *cache.Cache, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Store{
		source: src,
		cache:  c,
		logger: logger,
		ctx:    ctx,
		stop:   stop,
	}
}

// Snapshot returns the published snapshot, or nil while none is ready.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Ready reports whether a snapshot has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// RebuildAsync starts a rebuild for version in the background. The returned
// channel receives the outcome once.
func (s *Store) RebuildAsync(version string) <-chan error {
	done := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.Rebuild(s.ctx, version)
		if err != nil && !errors.Is(err, ErrSuperseded) {
			s.logger.Error("Schema rebuild failed", zap.String("version", version), zap.Error(err))
		}
		done <- err
	}()

	return done
}

// Reload drops the cached registry for version and rebuilds it in the
// background, e.g. after the reference pages changed on disk.
func (s *Store) Reload(version string) <-chan error {
	if s.cache != nil {
		if err := s.cache.Invalidate(s.cacheKey(version)); err != nil {
			s.logger.Warn("Failed to invalidate cache", zap.String("version", version), zap.Error(err))
		}
	}
	return s.RebuildAsync(version)
}

// Rebuild builds and publishes the snapshot for version. Starting a rebuild
// cancels the one in flight; on failure the previous snapshot stays.
func (s *Store) Rebuild(ctx context.Context, version string) (*Snapshot, error) {
	gen := s.generation.Inc()

	buildCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cancelMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.cancelMu.Unlock()

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if s.generation.Load() != gen {
		return nil, ErrSuperseded
	}

	snapshot, err := s.build(buildCtx, version)
	if s.generation.Load() != gen {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	s.current.Store(snapshot)
	s.logger.Info("Schema ready",
		zap.String("version", version),
		zap.Int("components", snapshot.Registry.Len()),
		zap.Bool("fromCache", snapshot.FromCache))

	if s.cache != nil && !snapshot.FromCache {
		if err := s.cache.Store(s.cacheKey(version), snapshot.Registry); err != nil {
			s.logger.Warn("Failed to write schema cache", zap.String("version", version), zap.Error(err))
		}
	}
	return snapshot, nil
}

func (s *Store) build(ctx context.Context, version string) (*Snapshot, error) {
	if s.cache != nil {
		s.cache.ClearExpired()
		registry, err := s.cache.Load(s.cacheKey(version))
		if err == nil {
			return &Snapshot{Version: version, Registry: registry, BuiltAt: time.Now(), FromCache: true}, nil
		}
		s.logger.Debug("Schema cache miss", zap.String("version", version), zap.Error(err))
	}

	bundle, err := s.source.Fetch(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("registry: fetching %s: %w", version, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	registry, err := parser.BuildRegistry(bundle.Shared, bundle.Components)
	for _, diag := range multierr.Errors(err) {
		s.logger.Warn("Schema diagnostic", zap.String("version", version), zap.Error(diag))
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("registry: version %s: %w", version, ErrEmpty)
	}

	return &Snapshot{Version: version, Registry: registry, BuiltAt: time.Now()}, nil
}

// cacheKey ties a cached registry to the source that built it.
func (s *Store) cacheKey(version string) cache.Key {
	return cache.Key{Source: s.source.ID(), Version: version}
}

// Close cancels background rebuilds and waits for them to return.
func (s *Store) Close() {
	s.stop()
	s.wg.Wait()
}
