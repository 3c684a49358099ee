// Package library keeps local copies of platform entities the connector works with,
// such as model revisions and routine revisions. A Library is refreshed from the
// platform on an interval, resolves cache misses on demand and persists its entries in
// the state store so a restarted connector starts warm.
package library

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/state"
)

// Source plugs an entity kind into a Library.
type Source[T any] struct {
	// Name identifies the library in logs and is the state store namespace.
	Name string
	// List returns every remote entity the connector should hold.
	List func(ctx context.Context) ([]T, error)
	// Get fetches one remote entity. It returns nil when the entity does not exist.
	Get func(ctx context.Context, externalID string) (*T, error)
	// Key returns the external id of an entity.
	Key func(T) string
	// Changed reports whether remote differs from the cached entry enough to be
	// prepared again. Nil means entries never change once cached.
	Changed func(cached, remote T) bool
	// Prepare turns a remote entity into the cached one, e.g. by downloading files.
	// Nil stores remote entities as they are.
	Prepare func(ctx context.Context, remote T) (T, error)
	// Evict is called after an entry is dropped.
	Evict func(T)
}

// Library is a synced, remote-backed entity cache.
type Library[T any] struct {
	src   Source[T]
	store *state.Store
	log   logger.Logger

	mu      sync.RWMutex
	entries map[string]T
}

// New creates a library and loads entries persisted by a previous process. store may
// be nil to keep entries in memory only.
func New[T any](src Source[T], store *state.Store) (*Library[T], error) {
	if src.List == nil || src.Get == nil || src.Key == nil {
		return nil, fmt.Errorf("library %s: list, get and key are required", src.Name)
	}

	l := &Library[T]{
		src:     src,
		store:   store,
		log:     logger.WithPrefix("library").WithField("library", src.Name),
		entries: make(map[string]T),
	}

	if store != nil {
		persisted, err := state.LoadAll[T](store, src.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s library: %w", src.Name, err)
		}
		l.entries = persisted
		if len(persisted) > 0 {
			l.log.Infof("Loaded %d persisted entries", len(persisted))
		}
	}

	return l, nil
}

// Lookup returns a cached entry without contacting the platform.
func (l *Library[T]) Lookup(externalID string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.entries[externalID]
	return v, ok
}

// Keys returns the cached external ids in sorted order.
func (l *Library[T]) Keys() []string {
	l.mu.RLock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	l.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached entries.
func (l *Library[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Get returns the entry for externalID, fetching and preparing it on a cache miss. It
// returns nil without an error when the platform does not know the entity; a cached
// copy of such an entity is dropped.
func (l *Library[T]) Get(ctx context.Context, externalID string) (*T, error) {
	if v, ok := l.Lookup(externalID); ok {
		return &v, nil
	}

	remote, err := l.src.Get(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", externalID, err)
	}
	if remote == nil {
		l.Remove(externalID)
		return nil, nil
	}

	v, err := l.add(ctx, *remote)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Refresh synchronizes the cache with the platform listing. New and changed entities
// are prepared and stored; entries no longer listed are dropped. Failures of single
// entities do not stop the refresh and are returned joined.
func (l *Library[T]) Refresh(ctx context.Context) error {
	remotes, err := l.src.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", l.src.Name, err)
	}

	seen := make(map[string]bool, len(remotes))
	var errs []error
	for _, remote := range remotes {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := l.src.Key(remote)
		seen[key] = true

		cached, ok := l.Lookup(key)
		if ok && (l.src.Changed == nil || !l.src.Changed(cached, remote)) {
			continue
		}
		if _, err := l.add(ctx, remote); err != nil {
			errs = append(errs, err)
		}
	}

	for _, key := range l.Keys() {
		if !seen[key] {
			l.log.Infof("Dropping %s, no longer listed", key)
			l.Remove(key)
		}
	}

	return errors.Join(errs...)
}

func (l *Library[T]) add(ctx context.Context, remote T) (T, error) {
	key := l.src.Key(remote)
	v := remote
	if l.src.Prepare != nil {
		prepared, err := l.src.Prepare(ctx, remote)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("failed to prepare %s: %w", key, err)
		}
		v = prepared
	}

	l.mu.Lock()
	l.entries[key] = v
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Put(l.src.Name, key, v); err != nil {
			l.log.Warnf("Failed to persist %s: %v", key, err)
		}
	}
	l.log.Debugf("Cached %s", key)
	return v, nil
}

// Remove drops externalID from the cache and the state store.
func (l *Library[T]) Remove(externalID string) {
	l.mu.Lock()
	v, ok := l.entries[externalID]
	delete(l.entries, externalID)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Delete(l.src.Name, externalID); err != nil {
			l.log.Warnf("Failed to delete %s: %v", externalID, err)
		}
	}
	if ok && l.src.Evict != nil {
		l.src.Evict(v)
	}
}
