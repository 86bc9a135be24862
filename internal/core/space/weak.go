package space

import (
	"fmt"
	"sync"
)

// Ref is a weak link to an entity bundled with caller data and attributes.
// It never keeps the entity registered; once the entity is destroyed the Ref
// is dead for good and its data and attributes are released.
type Ref struct {
	mu     sync.RWMutex
	entity *Entity
	data   any
	attrs  map[string]any
	dead   bool
	cancel func()
	onDead map[uint64]func()
	nextCB uint64
}

// Watch creates a Ref to e carrying data.
func Watch(e *Entity, data any) (*Ref, error) {
	if e == nil {
		return nil, fmt.Errorf("watch nil entity: %w", ErrNotFound)
	}
	r := &Ref{entity: e, data: data}
	cancel, err := e.Watch(WatchFuncs{Destroyed: func(*Entity) { r.kill() }})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	return r, nil
}

// Entity returns the referenced entity, or ErrNotFound once it is gone.
func (r *Ref) Entity() (*Entity, error) {
	r.mu.RLock()
	e, dead := r.entity, r.dead
	r.mu.RUnlock()
	if dead || !e.Alive() {
		return nil, fmt.Errorf("weak ref: %w", ErrNotFound)
	}
	return e, nil
}

func (r *Ref) Data() (any, error) {
	if _, err := r.Entity(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data, nil
}

func (r *Ref) SetAttr(key string, val any) error {
	if _, err := r.Entity(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return fmt.Errorf("weak ref: %w", ErrNotFound)
	}
	if r.attrs == nil {
		r.attrs = make(map[string]any)
	}
	r.attrs[key] = val
	return nil
}

func (r *Ref) Attr(key string) (any, error) {
	if _, err := r.Entity(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.attrs[key]
	if !ok {
		return nil, fmt.Errorf("attr %q: %w", key, ErrNotFound)
	}
	return v, nil
}

func (r *Ref) Alive() bool {
	_, err := r.Entity()
	return err == nil
}

// Release detaches the Ref from its entity without destroying the entity.
func (r *Ref) Release() {
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	r.kill()
}

func (r *Ref) kill() {
	r.mu.Lock()
	if r.dead {
		r.mu.Unlock()
		return
	}
	r.dead = true
	r.data = nil
	r.attrs = nil
	callbacks := r.onDead
	r.onDead = nil
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// onDeath registers fn to run when the Ref dies and returns a func that
// unregisters it. A dead Ref registers nothing and returns nil.
func (r *Ref) onDeath(fn func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return nil
	}
	if r.onDead == nil {
		r.onDead = make(map[uint64]func())
	}
	r.nextCB++
	id := r.nextCB
	r.onDead[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.onDead, id)
		r.mu.Unlock()
	}
}

func (r *Ref) deathCallbacks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.onDead)
}

// WeakTable maps keys to Refs. Keys sharing one Ref are aliases and all
// disappear together when its entity is destroyed.
type WeakTable[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*Ref
	aliases map[*Ref]*aliasSet[K]
}

// aliasSet is the keys a table stores one Ref under, plus the table's
// purge registration on that Ref.
type aliasSet[K comparable] struct {
	keys   map[K]struct{}
	cancel func()
}

func NewWeakTable[K comparable]() *WeakTable[K] {
	return &WeakTable[K]{
		entries: make(map[K]*Ref),
		aliases: make(map[*Ref]*aliasSet[K]),
	}
}

// Set stores r under key, replacing any previous Ref. Storing a dead Ref is
// allowed; reads report ErrNotFound. A nil Ref is rejected.
func (t *WeakTable[K]) Set(key K, r *Ref) error {
	if r == nil {
		return fmt.Errorf("weak table key %v: nil ref: %w", key, ErrNotFound)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.entries[key]; ok {
		if old == r {
			return nil
		}
		t.unaliasLocked(old, key)
	}
	t.entries[key] = r
	a, tracked := t.aliases[r]
	if !tracked {
		a = &aliasSet[K]{keys: make(map[K]struct{})}
		a.cancel = r.onDeath(func() { t.purge(r) })
		t.aliases[r] = a
	}
	a.keys[key] = struct{}{}
	return nil
}

// SetEntity watches e and stores the new Ref under key.
func (t *WeakTable[K]) SetEntity(key K, e *Entity) (*Ref, error) {
	r, err := Watch(e, nil)
	if err != nil {
		return nil, err
	}
	if err = t.Set(key, r); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (t *WeakTable[K]) Get(key K) (*Ref, error) {
	t.mu.Lock()
	r, ok := t.entries[key]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("weak table key %v: %w", key, ErrNotFound)
	}
	if !r.Alive() {
		t.purge(r)
		return nil, fmt.Errorf("weak table key %v: %w", key, ErrNotFound)
	}
	return r, nil
}

func (t *WeakTable[K]) Entity(key K) (*Entity, error) {
	r, err := t.Get(key)
	if err != nil {
		return nil, err
	}
	return r.Entity()
}

func (t *WeakTable[K]) Delete(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[key]
	if !ok {
		return false
	}
	delete(t.entries, key)
	t.unaliasLocked(r, key)
	return true
}

// Len counts stored keys, dead ones included until they are purged.
func (t *WeakTable[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *WeakTable[K]) Keys() []K {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]K, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	return out
}

func (t *WeakTable[K]) purge(r *Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.aliases[r]
	if !ok {
		return
	}
	for k := range a.keys {
		if t.entries[k] == r {
			delete(t.entries, k)
		}
	}
	delete(t.aliases, r)
	if a.cancel != nil {
		a.cancel()
	}
}

// unaliasLocked drops key from r's aliases. Without aliases left the table
// stops listening for r's death.
func (t *WeakTable[K]) unaliasLocked(r *Ref, key K) {
	a, ok := t.aliases[r]
	if !ok {
		return
	}
	delete(a.keys, key)
	if len(a.keys) == 0 {
		delete(t.aliases, r)
		if a.cancel != nil {
			a.cancel()
		}
	}
}
