package space

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"

	"github.com/zeusync/intellitrack/internal/core/events/bus"
	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/observability/metrics"
)

// DefaultKind is used when EntityConfig.Kind is empty.
const DefaultKind = "entity"

// node is the arena record behind an Entity.
type node struct {
	generation uint32
	alive      bool

	id       uint64
	kind     string
	name     string
	parent   Handle
	children []Handle

	watchers   map[uint64]Watcher
	onRename   func(e *Entity, oldName string)
	onReparent func(e *Entity, oldParent *Entity)

	entity *Entity
}

// Space owns the name Registry and the entity arena. Every domain object is
// created through a Space; there is no package-level registry.
type Space struct {
	mu        sync.Mutex
	registry  *Registry
	arena     *arena
	nextID    uint64
	nextWatch uint64

	log     log.Log
	bus     bus.EventBus
	metrics *metrics.Collector
}

type Option func(*Space)

func WithLogger(l log.Log) Option {
	return func(s *Space) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEventBus makes the Space publish EntityEvent payloads on b.
func WithEventBus(b bus.EventBus) Option {
	return func(s *Space) { s.bus = b }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Space) { s.metrics = c }
}

func New(opts ...Option) *Space {
	s := &Space{
		registry: NewRegistry(),
		arena:    newArena(),
		log:      log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EntityConfig describes a new entity. Name and Parent are optional; an
// unnamed entity uses its id as provisional name.
type EntityConfig struct {
	Kind       string
	Name       string
	Parent     *Entity
	OnRename   func(e *Entity, oldName string)
	OnReparent func(e *Entity, oldParent *Entity)
}

// Create registers a new entity. Name and parent are validated together, so
// a rejected Create leaves nothing behind.
func (s *Space) Create(cfg EntityConfig) (*Entity, error) {
	if cfg.Name != "" {
		if err := validateName(cfg.Name); err != nil {
			return nil, err
		}
	}
	if cfg.Parent != nil && cfg.Parent.space != s {
		return nil, ErrForeignSpace
	}
	kind := cfg.Kind
	if kind == "" {
		kind = DefaultKind
	}

	s.mu.Lock()
	var parent *node
	parentPath := ""
	if cfg.Parent != nil {
		var ok bool
		if parent, ok = s.arena.get(cfg.Parent.handle); !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("create under %s: %w", cfg.Parent, ErrDestroyed)
		}
		parentPath = s.pathLocked(parent)
	}

	s.nextID++
	id := s.nextID
	name := cfg.Name
	if name == "" {
		name = strconv.FormatUint(id, 10)
	}
	path := JoinPath(parentPath, name)
	if s.registry.Contains(path) {
		s.mu.Unlock()
		s.metrics.Rejected("conflict")
		s.log.Debug("create rejected", log.String("path", path))
		return nil, fmt.Errorf("create %q: %w", path, ErrNameConflict)
	}

	n := &node{
		alive:      true,
		id:         id,
		kind:       kind,
		name:       name,
		onRename:   cfg.OnRename,
		onReparent: cfg.OnReparent,
	}
	h := s.arena.alloc(n)
	n.entity = &Entity{space: s, handle: h, id: id, kind: kind}
	if err := s.registry.Register(path, h); err != nil {
		s.arena.release(h)
		s.mu.Unlock()
		return nil, err
	}
	if parent != nil {
		n.parent = cfg.Parent.handle
		parent.children = append(parent.children, h)
	}
	s.mu.Unlock()

	s.metrics.Created()
	s.publish(EventCreated, EntityEvent{ID: id, Kind: kind, Name: name, Path: path})
	return n.entity, nil
}

// Resolve returns the live entity registered under path.
func (s *Space) Resolve(path string) (*Entity, error) {
	h, err := s.registry.Lookup(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	n, ok := s.arena.get(h)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", path, ErrNotFound)
	}
	return n.entity, nil
}

// Lookup resolves name relative to parent; a nil parent means the root scope.
func (s *Space) Lookup(parent *Entity, name string) (*Entity, error) {
	if parent == nil {
		return s.Resolve(name)
	}
	if !parent.Alive() {
		return nil, fmt.Errorf("lookup %q under %s: %w", name, parent, ErrDestroyed)
	}
	return s.Resolve(JoinPath(parent.Path(), name))
}

// Roots returns the live entities without a parent in creation-slot order.
func (s *Space) Roots() []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entity
	for _, n := range s.arena.nodes {
		if n != nil && n.alive && n.parent.IsZero() {
			out = append(out, n.entity)
		}
	}
	return out
}

// Len is the number of live entities.
func (s *Space) Len() int {
	return s.registry.Len()
}

// Paths is a sorted snapshot of every registered path.
func (s *Space) Paths() []string {
	return s.registry.Paths()
}

// Entries iterates a sorted snapshot of every registered path with its
// entity. The Space is not locked while the loop body runs.
func (s *Space) Entries() iter.Seq2[string, *Entity] {
	s.mu.Lock()
	paths := s.registry.Paths()
	entities := make([]*Entity, 0, len(paths))
	kept := paths[:0]
	for _, p := range paths {
		h, err := s.registry.Lookup(p)
		if err != nil {
			continue
		}
		if n, ok := s.arena.get(h); ok {
			kept = append(kept, p)
			entities = append(entities, n.entity)
		}
	}
	s.mu.Unlock()

	return func(yield func(string, *Entity) bool) {
		for i, e := range entities {
			if !yield(kept[i], e) {
				return
			}
		}
	}
}

// Close destroys every live entity. The Space stays usable afterwards.
func (s *Space) Close() {
	for _, root := range s.Roots() {
		if err := root.Destroy(); err != nil {
			s.log.Debug("close: destroy root", log.String("entity", root.String()), log.Error(err))
		}
	}
}

func (s *Space) rename(e *Entity, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	n, ok := s.arena.get(e.handle)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("rename %s: %w", e, ErrDestroyed)
	}
	if n.name == name {
		s.mu.Unlock()
		return nil
	}
	parentPath := s.parentPathLocked(n)
	oldPath := JoinPath(parentPath, n.name)
	newPath := JoinPath(parentPath, name)
	if err := s.registry.Move(oldPath, newPath); err != nil {
		s.mu.Unlock()
		s.metrics.Rejected("conflict")
		s.log.Debug("rename rejected", log.String("path", oldPath), log.String("name", name), log.Error(err))
		return fmt.Errorf("rename %q: %w", oldPath, err)
	}
	oldName := n.name
	n.name = name
	watchers := watchersOf(n)
	hook := n.onRename
	s.mu.Unlock()

	for _, w := range watchers {
		w.EntityRenamed(e, oldName)
	}
	if hook != nil {
		hook(e, oldName)
	}
	s.metrics.Renamed()
	s.publish(EventRenamed, EntityEvent{
		ID: e.id, Kind: e.kind, Name: name, Path: newPath, OldName: oldName, OldPath: oldPath,
	})
	return nil
}

func (s *Space) reparent(e *Entity, parent *Entity) error {
	if parent != nil {
		if parent.space != s {
			return ErrForeignSpace
		}
		if parent.handle == e.handle {
			s.metrics.Rejected("self_parent")
			return fmt.Errorf("reparent %s: %w", e, ErrSelfParent)
		}
	}

	s.mu.Lock()
	n, ok := s.arena.get(e.handle)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("reparent %s: %w", e, ErrDestroyed)
	}
	var target Handle
	var pn *node
	if parent != nil {
		if pn, ok = s.arena.get(parent.handle); !ok {
			s.mu.Unlock()
			return fmt.Errorf("reparent %s under %s: %w", e, parent, ErrDestroyed)
		}
		target = parent.handle
	}
	if n.parent == target {
		s.mu.Unlock()
		return nil
	}
	if pn != nil && (s.isAncestorLocked(e.handle, target) || s.isDescendantLocked(target, e.handle)) {
		s.mu.Unlock()
		s.metrics.Rejected("cycle")
		s.log.Debug("reparent rejected: cycle", log.Uint64("id", e.id), log.Uint64("parent", parent.id))
		return fmt.Errorf("reparent %s under %s: %w", e, parent, ErrCycle)
	}

	oldPath := s.pathLocked(n)
	newPath := n.name
	if pn != nil {
		newPath = JoinPath(s.pathLocked(pn), n.name)
	}
	if err := s.registry.Move(oldPath, newPath); err != nil {
		s.mu.Unlock()
		s.metrics.Rejected("conflict")
		s.log.Debug("reparent rejected", log.String("path", oldPath), log.String("target", newPath), log.Error(err))
		return fmt.Errorf("reparent %q: %w", oldPath, err)
	}

	var oldParent *Entity
	if op, ok := s.arena.get(n.parent); ok {
		op.children = removeHandle(op.children, e.handle)
		oldParent = op.entity
	}
	if pn != nil {
		pn.children = append(pn.children, e.handle)
	}
	n.parent = target
	hook := n.onReparent
	name := n.name
	s.mu.Unlock()

	if hook != nil {
		hook(e, oldParent)
	}
	s.metrics.Reparented()
	s.publish(EventReparented, EntityEvent{
		ID: e.id, Kind: e.kind, Name: name, Path: newPath, OldPath: oldPath,
	})
	return nil
}

type doomed struct {
	entity   *Entity
	name     string
	path     string
	watchers []Watcher
}

// destroy removes e and its whole subtree, deepest first.
func (s *Space) destroy(e *Entity) error {
	s.mu.Lock()
	n, ok := s.arena.get(e.handle)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("destroy %s: %w", e, ErrDestroyed)
	}

	var order []*node
	var collect func(h Handle)
	collect = func(h Handle) {
		cn, ok := s.arena.get(h)
		if !ok {
			return
		}
		for _, c := range cn.children {
			collect(c)
		}
		order = append(order, cn)
	}
	collect(e.handle)

	gone := make([]doomed, 0, len(order))
	for _, d := range order {
		gone = append(gone, doomed{
			entity:   d.entity,
			name:     d.name,
			path:     s.pathLocked(d),
			watchers: watchersOf(d),
		})
	}
	if p, ok := s.arena.get(n.parent); ok {
		p.children = removeHandle(p.children, e.handle)
	}
	for i, d := range order {
		s.registry.Unregister(gone[i].path)
		d.children = nil
		d.watchers = nil
		d.onRename = nil
		d.onReparent = nil
		s.arena.release(d.entity.handle)
	}
	s.mu.Unlock()

	if len(gone) > 1 {
		s.log.Debug("destroy cascade", log.String("root", gone[len(gone)-1].path), log.Int("count", len(gone)))
	}
	for _, g := range gone {
		for _, w := range g.watchers {
			w.EntityDestroyed(g.entity)
		}
		s.publish(EventDestroyed, EntityEvent{
			ID: g.entity.id, Kind: g.entity.kind, Name: g.name, Path: g.path,
		})
	}
	s.metrics.Destroyed(len(gone))
	return nil
}

func (s *Space) watch(e *Entity, w Watcher) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.arena.get(e.handle)
	if !ok {
		return nil, fmt.Errorf("watch %s#%d: %w", e.kind, e.id, ErrDestroyed)
	}
	s.nextWatch++
	id := s.nextWatch
	if n.watchers == nil {
		n.watchers = make(map[uint64]Watcher)
	}
	n.watchers[id] = w
	h := e.handle
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if n, ok := s.arena.get(h); ok {
			delete(n.watchers, id)
		}
	}, nil
}

func (s *Space) pathLocked(n *node) string {
	return JoinPath(s.parentPathLocked(n), n.name)
}

func (s *Space) parentPathLocked(n *node) string {
	var names []string
	for h := n.parent; !h.IsZero(); {
		p, ok := s.arena.get(h)
		if !ok {
			break
		}
		names = append(names, p.name)
		h = p.parent
	}
	for l, r := 0, len(names)-1; l < r; l, r = l+1, r-1 {
		names[l], names[r] = names[r], names[l]
	}
	return strings.Join(names, Separator)
}

// isAncestorLocked walks up from h looking for anc.
func (s *Space) isAncestorLocked(anc, h Handle) bool {
	for cur := h; !cur.IsZero(); {
		if cur == anc {
			return true
		}
		n, ok := s.arena.get(cur)
		if !ok {
			return false
		}
		cur = n.parent
	}
	return false
}

// isDescendantLocked walks down the subtree of root looking for h.
func (s *Space) isDescendantLocked(h, root Handle) bool {
	n, ok := s.arena.get(root)
	if !ok {
		return false
	}
	for _, c := range n.children {
		if c == h || s.isDescendantLocked(h, c) {
			return true
		}
	}
	return false
}

func (s *Space) publish(typ string, ev EntityEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(bus.NewEvent(typ, "space", ev)); err != nil {
		s.log.Warn("event handler failed", log.String("type", typ), log.String("path", ev.Path), log.Error(err))
	}
}

func watchersOf(n *node) []Watcher {
	if len(n.watchers) == 0 {
		return nil
	}
	out := make([]Watcher, 0, len(n.watchers))
	for _, w := range n.watchers {
		out = append(out, w)
	}
	return out
}

func removeHandle(hs []Handle, h Handle) []Handle {
	for i, c := range hs {
		if c == h {
			return append(hs[:i], hs[i+1:]...)
		}
	}
	return hs
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	if strings.Contains(name, Separator) {
		return fmt.Errorf("name %q contains %q: %w", name, Separator, ErrInvalidName)
	}
	return nil
}
