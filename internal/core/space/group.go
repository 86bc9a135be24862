package space

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/zeusync/intellitrack/internal/core/observability/log"
)

// Strategy selects the storage layout of a Group.
type Strategy int

const (
	// Dense keeps a packed slice; lookups are O(1), discard is O(n).
	Dense Strategy = iota
	// Complete keeps tombstoned slots; discard is O(1), positional access
	// compacts lazily.
	Complete
)

func (s Strategy) String() string {
	switch s {
	case Dense:
		return "dense"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps "dense" or "complete" onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "dense":
		return Dense, nil
	case "complete":
		return Complete, nil
	default:
		return Dense, fmt.Errorf("unknown group strategy %q", s)
	}
}

// Pending is the position reported by add-type operations that were queued
// behind an active iteration.
const Pending = -1

// Collection is the ordered-set contract shared by both strategies.
type Collection interface {
	Add(e *Entity) (int, error)
	AddAsChild(e *Entity) (int, error)
	AddPath(path string) (int, error)
	Update(es ...*Entity) (int, error)
	Discard(e *Entity)
	DiscardName(name string)
	Contains(e *Entity) bool
	ContainsName(name string) bool
	Index(e *Entity) (int, error)
	At(i int) (*Entity, error)
	Get(name string) (*Entity, error)
	Slice(i, j int) ([]*Entity, error)
	Pop() (*Entity, error)
	Clear()
	Reverse()
	All() iter.Seq2[int, *Entity]
	Backward() iter.Seq2[int, *Entity]
	Items() []*Entity
	Names() []string
	Len() int
	Batch(fn func(tx *Tx) error) error
}

var _ Collection = (*Group)(nil)

type GroupConfig struct {
	Kind     string // defaults to "group"
	Name     string
	Parent   *Entity
	Strategy Strategy
}

type member struct {
	entity *Entity
	name   string
	owned  bool
	cancel func()
}

// Group is an insertion-ordered, duplicate-free collection of entities,
// indexed by position, identity and current name. A Group is an Entity
// itself, so members added with AddAsChild live under its path.
//
// Mutations requested while any iteration over the Group is running are
// queued and applied in order once the last iterator finishes.
type Group struct {
	*Entity

	space    *Space
	strategy Strategy
	log      log.Log

	mu        sync.Mutex
	cond      *sync.Cond
	iterating int
	exclusive bool
	batching  bool
	pending   []func()
	destroyed bool

	layout  layout
	members map[Handle]*member
	byName  map[string][]Handle
}

// NewGroup creates the group entity and fills it with initial members.
func NewGroup(s *Space, cfg GroupConfig, initial ...*Entity) (*Group, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = "group"
	}
	e, err := s.Create(EntityConfig{Kind: kind, Name: cfg.Name, Parent: cfg.Parent})
	if err != nil {
		return nil, err
	}
	g := &Group{
		Entity:   e,
		space:    s,
		strategy: cfg.Strategy,
		log:      s.log.Named("group").With(log.Uint64("group_id", e.id)),
		layout:   newLayout(cfg.Strategy),
		members:  make(map[Handle]*member),
		byName:   make(map[string][]Handle),
	}
	g.cond = sync.NewCond(&g.mu)
	if _, err = e.Watch(WatchFuncs{Destroyed: g.selfDestroyed}); err != nil {
		return nil, err
	}
	if _, err = g.Update(initial...); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	return g, nil
}

// NewCompleteGroup is NewGroup with the Complete strategy.
func NewCompleteGroup(s *Space, cfg GroupConfig, initial ...*Entity) (*Group, error) {
	cfg.Strategy = Complete
	return NewGroup(s, cfg, initial...)
}

func (g *Group) Strategy() Strategy { return g.strategy }

// Add inserts e as a non-owning member and returns its position. Adding a
// member again returns the position it already has.
func (g *Group) Add(e *Entity) (int, error) {
	return g.submit("add", func() (int, error) { return g.add(e, false) })
}

// AddAsChild inserts e and makes the group its parent.
func (g *Group) AddAsChild(e *Entity) (int, error) {
	return g.submit("add_as_child", func() (int, error) { return g.add(e, true) })
}

// AddPath resolves path through the Space registry and adds the result.
func (g *Group) AddPath(path string) (int, error) {
	return g.submit("add_path", func() (int, error) { return g.addPath(path) })
}

// Update adds every entity in order and returns the position of the last
// one, or -1 when es is empty. It stops at the first failure.
func (g *Group) Update(es ...*Entity) (int, error) {
	if len(es) == 0 {
		return -1, nil
	}
	return g.submit("update", func() (int, error) { return g.update(es) })
}

// Discard removes e if present. The entity is not reparented.
func (g *Group) Discard(e *Entity) {
	_, _ = g.submit("discard", func() (int, error) {
		g.discard(e)
		return 0, nil
	})
}

// DiscardName removes the member found by Get(name), if any.
func (g *Group) DiscardName(name string) {
	_, _ = g.submit("discard_name", func() (int, error) {
		if e, err := g.get(name, true); err == nil {
			g.discard(e)
		}
		return 0, nil
	})
}

// Pop removes and returns the last member. While deferred it returns
// (nil, nil).
func (g *Group) Pop() (*Entity, error) {
	var popped *Entity
	pos, err := g.submit("pop", func() (int, error) {
		e, err := g.pop()
		popped = e
		return 0, err
	})
	if pos == Pending || err != nil {
		return nil, err
	}
	return popped, nil
}

func (g *Group) Clear() {
	_, _ = g.submit("clear", func() (int, error) {
		g.clear()
		return 0, nil
	})
}

func (g *Group) Reverse() {
	_, _ = g.submit("reverse", func() (int, error) {
		g.mu.Lock()
		g.layout.reverse()
		g.mu.Unlock()
		return 0, nil
	})
}

// DestroyMembers destroys every member entity. The group itself survives.
func (g *Group) DestroyMembers() error {
	_, err := g.submit("destroy_members", func() (int, error) {
		return 0, g.destroyMembers()
	})
	return err
}

// Readers wait while a Batch runs on another goroutine and then see all of
// its changes at once. Inside Batch use the Tx readers instead.

func (g *Group) Contains(e *Entity) bool       { return g.contains(e, false) }
func (g *Group) ContainsName(name string) bool { return g.containsName(name, false) }
func (g *Group) Index(e *Entity) (int, error)  { return g.index(e, false) }
func (g *Group) At(i int) (*Entity, error)     { return g.at(i, false) }

// Get finds a member by its current name. A dotted name is resolved as a
// full path through the registry and must name a member.
//
// Renames reach the name index through a watcher that runs after the Space
// lock is released. While a Rename is in progress on another goroutine, the
// entity's Name may already be the new one while Get still finds it only
// under the old one. Once Rename returns, Get agrees with Name.
func (g *Group) Get(name string) (*Entity, error) { return g.get(name, false) }

// Slice returns members [i, j).
func (g *Group) Slice(i, j int) ([]*Entity, error) { return g.slice(i, j, false) }

func (g *Group) Len() int { return g.length(false) }

// Items is a snapshot of the members in order.
func (g *Group) Items() []*Entity { return g.items(false) }

// Names lists the indexed member names in order.
func (g *Group) Names() []string { return g.names(false) }

// lock takes g.mu. Outside a Tx it first waits until no Batch is running.
func (g *Group) lock(inTx bool) {
	g.mu.Lock()
	for !inTx && g.batching {
		g.cond.Wait()
	}
}

func (g *Group) contains(e *Entity, inTx bool) bool {
	if e == nil {
		return false
	}
	g.lock(inTx)
	defer g.mu.Unlock()
	m, ok := g.members[e.handle]
	return ok && m.entity == e
}

func (g *Group) containsName(name string, inTx bool) bool {
	_, err := g.get(name, inTx)
	return err == nil
}

func (g *Group) index(e *Entity, inTx bool) (int, error) {
	if e == nil {
		return 0, fmt.Errorf("index of nil: %w", ErrNotFound)
	}
	g.lock(inTx)
	defer g.mu.Unlock()
	if m, ok := g.members[e.handle]; ok && m.entity == e {
		if i, ok := g.layout.index(e.handle); ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("index of %s#%d: %w", e.kind, e.id, ErrNotFound)
}

func (g *Group) at(i int, inTx bool) (*Entity, error) {
	g.lock(inTx)
	defer g.mu.Unlock()
	e, ok := g.layout.at(i)
	if !ok {
		return nil, fmt.Errorf("at %d of %d: %w", i, g.layout.len(), ErrOutOfRange)
	}
	return e, nil
}

func (g *Group) get(name string, inTx bool) (*Entity, error) {
	if strings.Contains(name, Separator) {
		e, err := g.space.Resolve(name)
		if err != nil {
			return nil, err
		}
		if !g.contains(e, inTx) {
			return nil, fmt.Errorf("get %q: %w", name, ErrNotFound)
		}
		return e, nil
	}
	g.lock(inTx)
	defer g.mu.Unlock()
	hs := g.byName[name]
	if len(hs) == 0 {
		return nil, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return g.members[hs[0]].entity, nil
}

func (g *Group) slice(i, j int, inTx bool) ([]*Entity, error) {
	g.lock(inTx)
	defer g.mu.Unlock()
	n := g.layout.len()
	if i < 0 || j < i || j > n {
		return nil, fmt.Errorf("slice [%d:%d] of %d: %w", i, j, n, ErrOutOfRange)
	}
	out := make([]*Entity, 0, j-i)
	for k := i; k < j; k++ {
		e, _ := g.layout.at(k)
		out = append(out, e)
	}
	return out, nil
}

func (g *Group) length(inTx bool) int {
	g.lock(inTx)
	defer g.mu.Unlock()
	return g.layout.len()
}

func (g *Group) items(inTx bool) []*Entity {
	g.lock(inTx)
	defer g.mu.Unlock()
	return g.layout.items()
}

func (g *Group) names(inTx bool) []string {
	g.lock(inTx)
	defer g.mu.Unlock()
	items := g.layout.items()
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, g.members[e.handle].name)
	}
	return out
}

// All iterates members front to back. Mutations issued before the loop ends
// are deferred.
func (g *Group) All() iter.Seq2[int, *Entity] {
	return func(yield func(int, *Entity) bool) {
		g.beginIteration()
		defer g.endIteration()
		for i := 0; ; i++ {
			g.mu.Lock()
			e, ok := g.layout.at(i)
			g.mu.Unlock()
			if !ok || !yield(i, e) {
				return
			}
		}
	}
}

// Backward iterates members back to front.
func (g *Group) Backward() iter.Seq2[int, *Entity] {
	return func(yield func(int, *Entity) bool) {
		g.beginIteration()
		defer g.endIteration()
		g.mu.Lock()
		n := g.layout.len()
		g.mu.Unlock()
		for i := n - 1; i >= 0; i-- {
			g.mu.Lock()
			e, ok := g.layout.at(i)
			g.mu.Unlock()
			if !ok {
				continue
			}
			if !yield(i, e) {
				return
			}
		}
	}
}

func (g *Group) String() string {
	return fmt.Sprintf("%s%v", g.Entity.String(), g.Names())
}

// add runs with exclusive access.
func (g *Group) add(e *Entity, owned bool) (int, error) {
	if e == nil {
		return Pending, fmt.Errorf("add nil entity: %w", ErrNotFound)
	}
	if e.space != g.space {
		return Pending, fmt.Errorf("add %s: %w", e, ErrForeignSpace)
	}
	if e.handle == g.handle {
		return Pending, fmt.Errorf("add %s to itself: %w", e, ErrSelfParent)
	}

	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return Pending, fmt.Errorf("add to %s#%d: %w", g.kind, g.id, ErrDestroyed)
	}
	m, exists := g.members[e.handle]
	g.mu.Unlock()

	if owned && (!exists || !m.owned) && e.Parent() != g.Entity {
		if err := e.Reparent(g.Entity); err != nil {
			return Pending, err
		}
	}

	if exists {
		g.mu.Lock()
		defer g.mu.Unlock()
		if owned {
			m.owned = true
		}
		i, _ := g.layout.index(e.handle)
		return i, nil
	}

	cancel, err := e.Watch(WatchFuncs{Renamed: g.memberRenamed, Destroyed: g.memberDestroyed})
	if err != nil {
		return Pending, err
	}
	name := e.Name()

	g.mu.Lock()
	g.members[e.handle] = &member{entity: e, name: name, owned: owned, cancel: cancel}
	g.byName[name] = append(g.byName[name], e.handle)
	i := g.layout.push(e)
	g.mu.Unlock()

	// a rename or destroy may have raced the insert
	if !e.Alive() {
		g.forget(e.handle)
		return Pending, fmt.Errorf("add %s#%d: %w", e.kind, e.id, ErrDestroyed)
	}
	g.refreshName(e)
	return i, nil
}

func (g *Group) addPath(path string) (int, error) {
	e, err := g.space.Resolve(path)
	if err != nil {
		return Pending, err
	}
	return g.add(e, false)
}

func (g *Group) update(es []*Entity) (int, error) {
	last := -1
	for _, e := range es {
		i, err := g.add(e, false)
		if err != nil {
			return last, err
		}
		last = i
	}
	return last, nil
}

func (g *Group) discard(e *Entity) {
	if e == nil {
		return
	}
	g.mu.Lock()
	m, ok := g.members[e.handle]
	if !ok || m.entity != e {
		g.mu.Unlock()
		return
	}
	g.dropLocked(e.handle, m)
	g.mu.Unlock()
	m.cancel()
}

func (g *Group) pop() (*Entity, error) {
	g.mu.Lock()
	e, ok := g.layout.pop()
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("pop: %w", ErrEmptyCollection)
	}
	m := g.members[e.handle]
	delete(g.members, e.handle)
	g.unindexLocked(e.handle, m.name)
	g.mu.Unlock()
	m.cancel()
	return e, nil
}

func (g *Group) clear() {
	g.mu.Lock()
	ms := g.members
	g.members = make(map[Handle]*member)
	g.byName = make(map[string][]Handle)
	g.layout.clear()
	g.mu.Unlock()
	for _, m := range ms {
		m.cancel()
	}
}

func (g *Group) destroyMembers() error {
	var errs []error
	for _, e := range g.items(true) {
		// nested members may already be gone with their parent
		if err := e.Destroy(); err != nil && !errors.Is(err, ErrDestroyed) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("destroy members of %s: %d failed: %w", g.Entity, len(errs), errs[0])
	}
	return nil
}

// forget drops a member whose entity is gone. No watcher cancel is needed.
func (g *Group) forget(h Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.members[h]; ok {
		g.dropLocked(h, m)
	}
}

func (g *Group) dropLocked(h Handle, m *member) {
	g.layout.remove(h)
	delete(g.members, h)
	g.unindexLocked(h, m.name)
}

func (g *Group) unindexLocked(h Handle, name string) {
	hs := g.byName[name]
	for i, c := range hs {
		if c == h {
			hs = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(g.byName, name)
		return
	}
	g.byName[name] = hs
}

// refreshName re-keys one member under its current name. It loops so that
// out-of-order rename notifications settle on the latest name.
func (g *Group) refreshName(e *Entity) {
	for {
		name := e.Name()
		if name == "" {
			return
		}
		g.mu.Lock()
		m, ok := g.members[e.handle]
		if !ok || m.entity != e || m.name == name {
			g.mu.Unlock()
			return
		}
		g.unindexLocked(e.handle, m.name)
		m.name = name
		g.byName[name] = append(g.byName[name], e.handle)
		g.mu.Unlock()
	}
}

func (g *Group) memberRenamed(e *Entity, _ string) {
	g.refreshName(e)
}

func (g *Group) memberDestroyed(e *Entity) {
	g.mu.Lock()
	if g.iterating > 0 {
		h := e.handle
		g.pending = append(g.pending, func() { g.forget(h) })
		g.mu.Unlock()
		return
	}
	if m, ok := g.members[e.handle]; ok {
		g.dropLocked(e.handle, m)
	}
	g.mu.Unlock()
}

// selfDestroyed empties the group once its own entity is gone. Adds fail
// from now on; while iterators run, the clearing waits for them like any
// other structural change.
func (g *Group) selfDestroyed(*Entity) {
	g.mu.Lock()
	g.destroyed = true
	if g.iterating > 0 {
		g.pending = append(g.pending, g.dropAll)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.dropAll()
}

func (g *Group) dropAll() {
	g.mu.Lock()
	ms := g.members
	g.members = make(map[Handle]*member)
	g.byName = make(map[string][]Handle)
	g.layout.clear()
	g.mu.Unlock()
	for _, m := range ms {
		m.cancel()
	}
	g.log.Debug("group destroyed", log.Int("members", len(ms)))
}
