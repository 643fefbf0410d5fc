package build

import (
	"sync"
	"sync/atomic"
)

// Registry is a set of content hashes whose builds have been claimed.
// Add is the only synchronization point between concurrent build tasks.
type Registry struct {
	mu     sync.Mutex
	hashes map[uint64]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hashes: make(map[uint64]struct{})}
}

// Add claims the hash. It returns true if the caller is the first to
// claim it and therefore owns the build.
func (r *Registry) Add(hash uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hashes[hash]; ok {
		return false
	}
	r.hashes[hash] = struct{}{}
	return true
}

// Contains reports whether the hash has been claimed.
func (r *Registry) Contains(hash uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.hashes[hash]
	return ok
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry shared by all
// programs.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

var persistentCache atomic.Bool

// EnablePersistentCache makes pre-existing on-disk artifacts count as
// cache hits across process runs.
func EnablePersistentCache() {
	persistentCache.Store(true)
}

// DisablePersistentCache turns the on-disk cache back off.
func DisablePersistentCache() {
	persistentCache.Store(false)
}

// PersistentCacheEnabled reports the flag.
func PersistentCacheEnabled() bool {
	return persistentCache.Load()
}
