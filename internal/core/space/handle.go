package space

import "fmt"

// Handle addresses an entity slot in a Space arena. The generation is bumped
// every time a slot is recycled, so a Handle kept past Destroy never aliases
// the next occupant. The zero Handle means "none".
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) Index() uint32      { return h.index }
func (h Handle) Generation() uint32 { return h.generation }
func (h Handle) IsZero() bool       { return h.index == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "Handle(none)"
	}
	return fmt.Sprintf("Handle(%d:%d)", h.index, h.generation)
}

// arena stores nodes addressed by Handle with a free list for recycling.
// Slot 0 is reserved so the zero Handle never resolves.
type arena struct {
	nodes []*node
	free  []uint32
}

func newArena() *arena {
	return &arena{
		nodes: make([]*node, 1, 64),
		free:  make([]uint32, 0, 16),
	}
}

func (a *arena) alloc(n *node) Handle {
	if len(a.free) > 0 {
		idx := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		n.generation = a.nodes[idx].generation + 1
		a.nodes[idx] = n
		return Handle{index: idx, generation: n.generation}
	}
	idx := uint32(len(a.nodes))
	n.generation = 1
	a.nodes = append(a.nodes, n)
	return Handle{index: idx, generation: n.generation}
}

func (a *arena) get(h Handle) (*node, bool) {
	if h.IsZero() || int(h.index) >= len(a.nodes) {
		return nil, false
	}
	n := a.nodes[h.index]
	if n == nil || !n.alive || n.generation != h.generation {
		return nil, false
	}
	return n, true
}

// release marks the slot dead but keeps the node so the generation survives
// until the slot is reused.
func (a *arena) release(h Handle) {
	n, ok := a.get(h)
	if !ok {
		return
	}
	n.alive = false
	a.free = append(a.free, h.index)
}
