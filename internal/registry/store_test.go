package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"go.uber.org/goleak"

	"github.com/mcncl/river-ls/internal/cache"
	"github.com/mcncl/river-ls/internal/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves the fixture pages. Versions listed in block wait until
// released or cancelled; versions listed in fail return that error.
type fakeSource struct {
	bundle *source.Bundle

	mu      sync.Mutex
	calls   []string
	started chan string
	block   map[string]chan struct{}
	fail    map[string]error
}

func newTestSource(t *testing.T) *fakeSource {
	t.Helper()
	bundle, err := source.NewFixture(nil).Fetch(testContext(t), "fixture")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	return &fakeSource{
		bundle:  bundle,
		started: make(chan string, 8),
		block:   make(map[string]chan struct{}),
		fail:    make(map[string]error),
	}
}

func (f *fakeSource) ID() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, version string) (*source.Bundle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, version)
	release := f.block[version]
	failure := f.fail[version]
	f.mu.Unlock()

	f.started <- version

	if release != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
	}
	if failure != nil {
		return nil, failure
	}

	bundle := *f.bundle
	bundle.Version = version
	return &bundle, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitFor(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for rebuild")
		return nil
	}
}

func TestStore_NotReadyBeforeBuild(t *testing.T) {
	store := New(newTestSource(t), nil, nil)
	defer store.Close()

	if store.Ready() {
		t.Error("Store should not be ready before a build")
	}
	if store.Snapshot() != nil {
		t.Error("Expected nil snapshot before a build")
	}
}

func TestStore_Rebuild(t *testing.T) {
	src := newTestSource(t)
	store := New(src, nil, nil)
	defer store.Close()

	snapshot, err := store.Rebuild(testContext(t), "release-v0.40")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if snapshot.Version != "release-v0.40" {
		t.Errorf("Expected version release-v0.40, got %s", snapshot.Version)
	}
	if !snapshot.Registry.Has("local.file") {
		t.Error("Expected local.file in snapshot")
	}
	if store.Snapshot() != snapshot {
		t.Error("Expected the rebuilt snapshot to be published")
	}
}

func TestStore_UsesCache(t *testing.T) {
	dir := t.TempDir()

	first := New(newTestSource(t), cache.New(dir, time.Hour, nil), nil)
	if _, err := first.Rebuild(testContext(t), "release-v0.40"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	first.Close()

	src := newTestSource(t)
	second := New(src, cache.New(dir, time.Hour, nil), nil)
	defer second.Close()

	snapshot, err := second.Rebuild(testContext(t), "release-v0.40")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if !snapshot.FromCache {
		t.Error("Expected snapshot to come from the cache")
	}
	if src.callCount() != 0 {
		t.Errorf("Expected no fetch on a cache hit, got %d", src.callCount())
	}
	if snapshot.Registry.Len() == 0 {
		t.Error("Expected cached components")
	}
}

func TestStore_CacheIsPerSource(t *testing.T) {
	dir := t.TempDir()

	fixture := New(source.NewFixture(nil), cache.New(dir, time.Hour, nil), nil)
	if _, err := fixture.Rebuild(testContext(t), "release-v0.40"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	fixture.Close()

	onePage := fstest.MapFS{
		"components/logging.md": {Data: []byte("# logging\n\n## Arguments\n\n" +
			"Name | Type | Description | Default | Required\n" +
			"---- | ---- | ----------- | ------- | --------\n" +
			"`level` | `string` | Level to log at | `\"info\"` | no\n")},
	}
	local := New(source.NewDir(onePage, nil), cache.New(dir, time.Hour, nil), nil)
	defer local.Close()

	snapshot, err := local.Rebuild(testContext(t), "release-v0.40")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if snapshot.FromCache {
		t.Error("Expected another source not to reuse the fixture cache entry")
	}
	if names := snapshot.Registry.Names(); len(names) != 1 || names[0] != "logging" {
		t.Errorf("Expected only logging, got %v", names)
	}
}

func TestStore_FailureKeepsPreviousSnapshot(t *testing.T) {
	src := newTestSource(t)
	src.fail["broken"] = errors.New("boom")
	store := New(src, nil, nil)
	defer store.Close()

	previous, err := store.Rebuild(testContext(t), "release-v0.40")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if err := waitFor(t, store.RebuildAsync("broken")); err == nil {
		t.Fatal("Expected rebuild to fail")
	}
	if store.Snapshot() != previous {
		t.Error("Failed rebuild should keep the previous snapshot")
	}
}

func TestStore_EmptyVersionIsAnError(t *testing.T) {
	src := newTestSource(t)
	src.bundle = &source.Bundle{}
	store := New(src, nil, nil)
	defer store.Close()

	if _, err := store.Rebuild(testContext(t), "empty"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Expected ErrEmpty, got %v", err)
	}
	if store.Ready() {
		t.Error("Store should not publish an empty registry")
	}
}

func TestStore_NewerRebuildSupersedes(t *testing.T) {
	src := newTestSource(t)
	src.block["v1"] = make(chan struct{})
	store := New(src, nil, nil)
	defer store.Close()

	first := store.RebuildAsync("v1")
	if version := <-src.started; version != "v1" {
		t.Fatalf("Expected v1 to start first, got %s", version)
	}

	second := store.RebuildAsync("v2")

	if err := waitFor(t, first); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Expected ErrSuperseded for v1, got %v", err)
	}
	if err := waitFor(t, second); err != nil {
		t.Fatalf("Expected v2 to succeed, got %v", err)
	}
	if got := store.Snapshot().Version; got != "v2" {
		t.Errorf("Expected v2 to be published, got %s", got)
	}
}

func TestStore_CloseCancelsInFlightRebuild(t *testing.T) {
	src := newTestSource(t)
	src.block["slow"] = make(chan struct{})
	store := New(src, nil, nil)

	done := store.RebuildAsync("slow")
	<-src.started

	store.Close()

	if err := waitFor(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if store.Ready() {
		t.Error("Cancelled rebuild should not publish")
	}
}

func TestStore_Reload(t *testing.T) {
	dir := t.TempDir()
	src := newTestSource(t)
	store := New(src, cache.New(dir, time.Hour, nil), nil)
	defer store.Close()

	if _, err := store.Rebuild(testContext(t), "release-v0.40"); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if err := waitFor(t, store.Reload("release-v0.40")); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if src.callCount() != 2 {
		t.Errorf("Expected reload to bypass the cache, got %d fetches", src.callCount())
	}
	if store.Snapshot().FromCache {
		t.Error("Reloaded snapshot should not come from the cache")
	}
}
