package space

// slot is one insertion record of a completeLayout. Discarded slots become
// tombstones until the next compaction.
type slot struct {
	entity *Entity
	live   bool
}

// completeLayout trades memory and insertion cost for O(1) removal: removal
// only marks a tombstone and positional lookups compact lazily.
type completeLayout struct {
	slots []slot
	pos   map[Handle]int // handle -> slot index
	dead  int
}

func newCompleteLayout() *completeLayout {
	return &completeLayout{pos: make(map[Handle]int)}
}

func (c *completeLayout) len() int { return len(c.slots) - c.dead }

func (c *completeLayout) at(i int) (*Entity, bool) {
	c.compact()
	if i < 0 || i >= len(c.slots) {
		return nil, false
	}
	return c.slots[i].entity, true
}

func (c *completeLayout) index(h Handle) (int, bool) {
	if _, ok := c.pos[h]; !ok {
		return 0, false
	}
	c.compact()
	return c.pos[h], true
}

func (c *completeLayout) push(e *Entity) int {
	if _, ok := c.pos[e.handle]; ok {
		i, _ := c.index(e.handle)
		return i
	}
	c.pos[e.handle] = len(c.slots)
	c.slots = append(c.slots, slot{entity: e, live: true})
	return c.len() - 1
}

func (c *completeLayout) remove(h Handle) bool {
	i, ok := c.pos[h]
	if !ok {
		return false
	}
	c.slots[i] = slot{}
	delete(c.pos, h)
	c.dead++
	c.trim()
	return true
}

func (c *completeLayout) pop() (*Entity, bool) {
	c.trim()
	if len(c.slots) == 0 {
		return nil, false
	}
	e := c.slots[len(c.slots)-1].entity
	c.slots = c.slots[:len(c.slots)-1]
	delete(c.pos, e.handle)
	c.trim()
	return e, true
}

func (c *completeLayout) reverse() {
	c.compact()
	for l, r := 0, len(c.slots)-1; l < r; l, r = l+1, r-1 {
		c.slots[l], c.slots[r] = c.slots[r], c.slots[l]
	}
	for i, s := range c.slots {
		c.pos[s.entity.handle] = i
	}
}

func (c *completeLayout) clear() {
	c.slots = nil
	c.pos = make(map[Handle]int)
	c.dead = 0
}

func (c *completeLayout) items() []*Entity {
	out := make([]*Entity, 0, c.len())
	for _, s := range c.slots {
		if s.live {
			out = append(out, s.entity)
		}
	}
	return out
}

// trim drops trailing tombstones so pop stays O(1) amortized.
func (c *completeLayout) trim() {
	for len(c.slots) > 0 && !c.slots[len(c.slots)-1].live {
		c.slots = c.slots[:len(c.slots)-1]
		c.dead--
	}
}

func (c *completeLayout) compact() {
	if c.dead == 0 {
		return
	}
	live := c.slots[:0]
	for _, s := range c.slots {
		if s.live {
			c.pos[s.entity.handle] = len(live)
			live = append(live, s)
		}
	}
	for i := len(live); i < len(c.slots); i++ {
		c.slots[i] = slot{}
	}
	c.slots = live
	c.dead = 0
}
