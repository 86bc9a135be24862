package space

import "fmt"

// Entity is a named node in a Space. The pointer stays valid after Destroy;
// accessors then return zero values and mutations fail with ErrDestroyed.
type Entity struct {
	space  *Space
	handle Handle
	id     uint64
	kind   string
}

func (e *Entity) ID() uint64     { return e.id }
func (e *Entity) Kind() string   { return e.kind }
func (e *Entity) Handle() Handle { return e.handle }
func (e *Entity) Space() *Space  { return e.space }

func (e *Entity) Name() string {
	e.space.mu.Lock()
	defer e.space.mu.Unlock()
	if n, ok := e.space.arena.get(e.handle); ok {
		return n.name
	}
	return ""
}

// Path is the dot-joined chain of names from the root scope.
func (e *Entity) Path() string {
	e.space.mu.Lock()
	defer e.space.mu.Unlock()
	if n, ok := e.space.arena.get(e.handle); ok {
		return e.space.pathLocked(n)
	}
	return ""
}

func (e *Entity) Parent() *Entity {
	e.space.mu.Lock()
	defer e.space.mu.Unlock()
	n, ok := e.space.arena.get(e.handle)
	if !ok {
		return nil
	}
	if p, ok := e.space.arena.get(n.parent); ok {
		return p.entity
	}
	return nil
}

// Children returns the direct children in attachment order.
func (e *Entity) Children() []*Entity {
	e.space.mu.Lock()
	defer e.space.mu.Unlock()
	n, ok := e.space.arena.get(e.handle)
	if !ok {
		return nil
	}
	out := make([]*Entity, 0, len(n.children))
	for _, h := range n.children {
		if c, ok := e.space.arena.get(h); ok {
			out = append(out, c.entity)
		}
	}
	return out
}

func (e *Entity) Alive() bool {
	e.space.mu.Lock()
	defer e.space.mu.Unlock()
	_, ok := e.space.arena.get(e.handle)
	return ok
}

// Rename changes the last path segment. Descendant paths follow.
func (e *Entity) Rename(name string) error {
	return e.space.rename(e, name)
}

// Reparent moves the entity under parent; nil moves it to the root scope.
func (e *Entity) Reparent(parent *Entity) error {
	return e.space.reparent(e, parent)
}

// Destroy removes the entity and its subtree from the Space.
func (e *Entity) Destroy() error {
	return e.space.destroy(e)
}

// Watch registers w for rename and destroy notifications. The returned
// function detaches it and is safe to call more than once.
func (e *Entity) Watch(w Watcher) (func(), error) {
	return e.space.watch(e, w)
}

// Watchers is the number of attached watchers.
func (e *Entity) Watchers() int {
	e.space.mu.Lock()
	defer e.space.mu.Unlock()
	if n, ok := e.space.arena.get(e.handle); ok {
		return len(n.watchers)
	}
	return 0
}

func (e *Entity) String() string {
	if p := e.Path(); p != "" {
		return fmt.Sprintf("%s(%s)", e.kind, p)
	}
	return fmt.Sprintf("%s#%d(destroyed)", e.kind, e.id)
}
