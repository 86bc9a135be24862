package space

import (
	"iter"
	"sync"

	"github.com/zeusync/intellitrack/internal/core/observability/log"
)

// submit applies op with exclusive access, or queues it when an iteration is
// active and reports Pending. Queued errors are logged when they surface.
func (g *Group) submit(what string, op func() (int, error)) (int, error) {
	g.mu.Lock()
	for g.exclusive {
		g.cond.Wait()
	}
	if g.iterating > 0 {
		g.pending = append(g.pending, func() {
			if _, err := op(); err != nil {
				g.log.Warn("deferred mutation failed", log.String("op", what), log.Error(err))
			}
		})
		g.mu.Unlock()
		g.space.metrics.Deferred(g.kind)
		return Pending, nil
	}
	g.exclusive = true
	g.mu.Unlock()
	defer g.release()
	return op()
}

func (g *Group) release() {
	g.mu.Lock()
	g.exclusive = false
	g.batching = false
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *Group) beginIteration() {
	g.mu.Lock()
	for g.exclusive {
		g.cond.Wait()
	}
	g.iterating++
	g.mu.Unlock()
}

// endIteration flushes the queue once the last iterator is done.
func (g *Group) endIteration() {
	g.mu.Lock()
	g.iterating--
	if g.iterating > 0 {
		g.mu.Unlock()
		return
	}
	if len(g.pending) == 0 {
		g.cond.Broadcast()
		g.mu.Unlock()
		return
	}
	g.exclusive = true
	flushed := 0
	for len(g.pending) > 0 {
		ops := g.pending
		g.pending = nil
		g.mu.Unlock()
		for _, op := range ops {
			op()
		}
		flushed += len(ops)
		g.mu.Lock()
	}
	g.exclusive = false
	g.cond.Broadcast()
	g.mu.Unlock()

	g.space.metrics.Flushed(g.kind, flushed)
	g.log.Debug("deferred mutations applied", log.Int("count", flushed))
}

// Hold opens an iteration window without iterating. Mutations submitted
// until the returned release runs are deferred, as inside All. Calling
// release more than once has no further effect.
func (g *Group) Hold() (release func()) {
	g.beginIteration()
	return sync.OnceFunc(g.endIteration)
}

// Batch waits for running iterations to finish, then runs fn with exclusive
// access. Tx operations apply immediately and are visible through the Tx;
// readers on other goroutines block until fn returns and then see every
// change at once. Changes made before fn fails are kept.
//
// Inside fn only the Tx may touch the group: calling the Group's own
// methods from fn, or Batch from inside an iteration over the same group,
// blocks forever.
func (g *Group) Batch(fn func(tx *Tx) error) error {
	g.mu.Lock()
	for g.exclusive || g.iterating > 0 {
		g.cond.Wait()
	}
	g.exclusive = true
	g.batching = true
	g.mu.Unlock()
	defer g.release()
	return fn(&Tx{g: g})
}

// Tx is the only handle on a Group inside Batch. It reads the group's
// uncommitted state and must not escape fn.
type Tx struct {
	g *Group
}

func (tx *Tx) Add(e *Entity) (int, error)        { return tx.g.add(e, false) }
func (tx *Tx) AddAsChild(e *Entity) (int, error) { return tx.g.add(e, true) }
func (tx *Tx) AddPath(path string) (int, error)  { return tx.g.addPath(path) }
func (tx *Tx) Discard(e *Entity)                 { tx.g.discard(e) }
func (tx *Tx) Pop() (*Entity, error)             { return tx.g.pop() }
func (tx *Tx) Clear()                            { tx.g.clear() }

func (tx *Tx) Update(es ...*Entity) (int, error) {
	if len(es) == 0 {
		return -1, nil
	}
	return tx.g.update(es)
}

func (tx *Tx) DiscardName(name string) {
	if e, err := tx.g.get(name, true); err == nil {
		tx.g.discard(e)
	}
}

func (tx *Tx) Reverse() {
	tx.g.mu.Lock()
	tx.g.layout.reverse()
	tx.g.mu.Unlock()
}

func (tx *Tx) Len() int                          { return tx.g.length(true) }
func (tx *Tx) At(i int) (*Entity, error)         { return tx.g.at(i, true) }
func (tx *Tx) Get(name string) (*Entity, error)  { return tx.g.get(name, true) }
func (tx *Tx) Index(e *Entity) (int, error)      { return tx.g.index(e, true) }
func (tx *Tx) Contains(e *Entity) bool           { return tx.g.contains(e, true) }
func (tx *Tx) ContainsName(name string) bool     { return tx.g.containsName(name, true) }
func (tx *Tx) Slice(i, j int) ([]*Entity, error) { return tx.g.slice(i, j, true) }
func (tx *Tx) Items() []*Entity                  { return tx.g.items(true) }
func (tx *Tx) Names() []string                   { return tx.g.names(true) }

// All iterates a snapshot; it does not open an iteration window.
func (tx *Tx) All() iter.Seq2[int, *Entity] {
	items := tx.g.items(true)
	return func(yield func(int, *Entity) bool) {
		for i, e := range items {
			if !yield(i, e) {
				return
			}
		}
	}
}
