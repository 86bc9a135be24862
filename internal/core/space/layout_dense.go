package space

// layout stores the ordered members of a Group. Implementations are not
// synchronized; the owning Group serializes access.
type layout interface {
	len() int
	at(i int) (*Entity, bool)
	index(h Handle) (int, bool)
	push(e *Entity) int
	remove(h Handle) bool
	pop() (*Entity, bool)
	reverse()
	clear()
	items() []*Entity
}

func newLayout(s Strategy) layout {
	if s == Complete {
		return newCompleteLayout()
	}
	return newDenseLayout()
}

// denseLayout is a packed slice plus a position map. Removal renumbers every
// later element.
type denseLayout struct {
	entries []*Entity
	pos     map[Handle]int
}

func newDenseLayout() *denseLayout {
	return &denseLayout{pos: make(map[Handle]int)}
}

func (d *denseLayout) len() int { return len(d.entries) }

func (d *denseLayout) at(i int) (*Entity, bool) {
	if i < 0 || i >= len(d.entries) {
		return nil, false
	}
	return d.entries[i], true
}

func (d *denseLayout) index(h Handle) (int, bool) {
	i, ok := d.pos[h]
	return i, ok
}

func (d *denseLayout) push(e *Entity) int {
	if i, ok := d.pos[e.handle]; ok {
		return i
	}
	d.pos[e.handle] = len(d.entries)
	d.entries = append(d.entries, e)
	return len(d.entries) - 1
}

func (d *denseLayout) remove(h Handle) bool {
	i, ok := d.pos[h]
	if !ok {
		return false
	}
	copy(d.entries[i:], d.entries[i+1:])
	d.entries[len(d.entries)-1] = nil
	d.entries = d.entries[:len(d.entries)-1]
	delete(d.pos, h)
	for j := i; j < len(d.entries); j++ {
		d.pos[d.entries[j].handle] = j
	}
	return true
}

func (d *denseLayout) pop() (*Entity, bool) {
	if len(d.entries) == 0 {
		return nil, false
	}
	last := len(d.entries) - 1
	e := d.entries[last]
	d.entries[last] = nil
	d.entries = d.entries[:last]
	delete(d.pos, e.handle)
	return e, true
}

func (d *denseLayout) reverse() {
	for l, r := 0, len(d.entries)-1; l < r; l, r = l+1, r-1 {
		d.entries[l], d.entries[r] = d.entries[r], d.entries[l]
	}
	for i, e := range d.entries {
		d.pos[e.handle] = i
	}
}

func (d *denseLayout) clear() {
	d.entries = nil
	d.pos = make(map[Handle]int)
}

func (d *denseLayout) items() []*Entity {
	out := make([]*Entity, len(d.entries))
	copy(out, d.entries)
	return out
}
