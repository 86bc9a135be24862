package space

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Separator joins names into hierarchical paths.
const Separator = "."

// JoinPath joins a parent path and a child name. An empty parent yields the
// name itself, which is the root scope.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + Separator + name
}

// Registry maps hierarchical paths to entity handles and owns path
// uniqueness. It is safe for concurrent use; Move is atomic with respect to
// every other Registry call.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Handle),
	}
}

// Register inserts path. It fails with ErrNameConflict if path is taken.
func (r *Registry) Register(path string, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[path]; exists {
		return fmt.Errorf("register %q: %w", path, ErrNameConflict)
	}
	r.entries[path] = h
	return nil
}

// Unregister removes path and reports whether it was present.
func (r *Registry) Unregister(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[path]; !exists {
		return false
	}
	delete(r.entries, path)
	return true
}

func (r *Registry) Lookup(path string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[path]
	if !ok {
		return Handle{}, fmt.Errorf("lookup %q: %w", path, ErrNotFound)
	}
	return h, nil
}

func (r *Registry) Contains(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[path]
	return ok
}

// Move relocates oldPath and every descendant path (prefixed by
// oldPath + Separator) under newPath. All targets are checked before
// anything is touched, so a failed Move leaves the registry unchanged.
func (r *Registry) Move(oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[oldPath]; !ok {
		return fmt.Errorf("move %q: %w", oldPath, ErrNotFound)
	}

	prefix := oldPath + Separator
	moves := map[string]string{oldPath: newPath}
	for p := range r.entries {
		if strings.HasPrefix(p, prefix) {
			moves[p] = newPath + Separator + p[len(prefix):]
		}
	}
	for from, to := range moves {
		if _, taken := r.entries[to]; taken {
			// a target may be freed by this same move (e.g. a.b -> a)
			if _, moving := moves[to]; !moving {
				return fmt.Errorf("move %q to %q: %w", from, to, ErrNameConflict)
			}
		}
	}

	handles := make(map[string]Handle, len(moves))
	for from := range moves {
		handles[from] = r.entries[from]
		delete(r.entries, from)
	}
	for from, to := range moves {
		r.entries[to] = handles[from]
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Paths returns a sorted snapshot of every registered path.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.entries))
	for p := range r.entries {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Range calls fn for a snapshot of the entries until fn returns false.
func (r *Registry) Range(fn func(path string, h Handle) bool) {
	r.mu.RLock()
	snapshot := make(map[string]Handle, len(r.entries))
	for p, h := range r.entries {
		snapshot[p] = h
	}
	r.mu.RUnlock()
	for p, h := range snapshot {
		if !fn(p, h) {
			return
		}
	}
}
