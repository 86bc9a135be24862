package space

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []Strategy{Dense, Complete}

func newTestGroup(t testing.TB, s *Space, strategy Strategy, name string, initial ...*Entity) *Group {
	t.Helper()
	g, err := NewGroup(s, GroupConfig{Name: name, Strategy: strategy}, initial...)
	require.NoError(t, err)
	return g
}

func populate(t testing.TB, s *Space, n int) []*Entity {
	t.Helper()
	out := make([]*Entity, n)
	for i := range out {
		out[i] = mustCreate(t, s, fmt.Sprintf("e%d", i), nil)
	}
	return out
}

// assertConsistent checks that position, identity and name views agree.
func assertConsistent(t testing.TB, g *Group) {
	t.Helper()
	items := g.Items()
	assert.Equal(t, len(items), g.Len())
	names := g.Names()
	require.Len(t, names, len(items))
	for i, e := range items {
		at, err := g.At(i)
		require.NoError(t, err)
		assert.Same(t, e, at)

		idx, err := g.Index(e)
		require.NoError(t, err)
		assert.Equal(t, i, idx)

		assert.Equal(t, e.Name(), names[i])
		byName, err := g.Get(names[i])
		require.NoError(t, err)
		assert.Same(t, e, byName)
	}
}

func TestGroupAddAndLookup(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			es := populate(t, s, 3)
			g := newTestGroup(t, s, strategy, "g")
			assert.Equal(t, strategy, g.Strategy())
			assert.Equal(t, "group", g.Kind())

			for i, e := range es {
				pos, err := g.Add(e)
				require.NoError(t, err)
				assert.Equal(t, i, pos)
			}
			pos, err := g.Add(es[1])
			require.NoError(t, err)
			assert.Equal(t, 1, pos)
			assert.Equal(t, 3, g.Len())

			assert.True(t, g.Contains(es[2]))
			assert.True(t, g.ContainsName("e0"))
			assert.False(t, g.ContainsName("e9"))

			got, err := g.Get("e2")
			require.NoError(t, err)
			assert.Same(t, es[2], got)

			_, err = g.At(3)
			assert.ErrorIs(t, err, ErrOutOfRange)
			_, err = g.Get("missing")
			assert.ErrorIs(t, err, ErrNotFound)

			outsider := mustCreate(t, s, "outsider", nil)
			_, err = g.Index(outsider)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.Equal(t, []string{"e0", "e1", "e2"}, g.Names())
			assertConsistent(t, g)
		})
	}
}

func TestGroupInitialMembersAndUpdate(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			es := populate(t, s, 4)
			g := newTestGroup(t, s, strategy, "g", es[0], es[1])

			last, err := g.Update(es[2], es[3], es[0])
			require.NoError(t, err)
			assert.Equal(t, 0, last)
			assert.Equal(t, es, g.Items())

			last, err = g.Update()
			require.NoError(t, err)
			assert.Equal(t, -1, last)

			_, err = g.Update(es[1], nil)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, 4, g.Len())
		})
	}
}

func TestGroupDiscard(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			es := populate(t, s, 5)
			g := newTestGroup(t, s, strategy, "g", es...)

			g.Discard(es[1])
			assert.False(t, g.Contains(es[1]))
			idx, err := g.Index(es[4])
			require.NoError(t, err)
			assert.Equal(t, 3, idx)
			assertConsistent(t, g)

			// absent element, twice
			g.Discard(es[1])
			g.Discard(es[1])
			assert.Equal(t, 4, g.Len())

			g.DiscardName("e3")
			g.DiscardName("nothing")
			assert.Equal(t, []*Entity{es[0], es[2], es[4]}, g.Items())
			assert.True(t, es[3].Alive())
			assertConsistent(t, g)
		})
	}
}

func TestGroupPopClearReverseSlice(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			es := populate(t, s, 4)
			g := newTestGroup(t, s, strategy, "g", es...)

			part, err := g.Slice(1, 3)
			require.NoError(t, err)
			assert.Equal(t, []*Entity{es[1], es[2]}, part)
			_, err = g.Slice(3, 5)
			assert.ErrorIs(t, err, ErrOutOfRange)

			g.Reverse()
			assert.Equal(t, []*Entity{es[3], es[2], es[1], es[0]}, g.Items())
			assertConsistent(t, g)
			g.Reverse()
			assert.Equal(t, es, g.Items())
			assertConsistent(t, g)

			popped, err := g.Pop()
			require.NoError(t, err)
			assert.Same(t, es[3], popped)
			assert.False(t, g.ContainsName("e3"))

			var backward []*Entity
			for _, e := range g.Backward() {
				backward = append(backward, e)
			}
			assert.Equal(t, []*Entity{es[2], es[1], es[0]}, backward)

			g.Clear()
			assert.Equal(t, 0, g.Len())
			_, err = g.Pop()
			assert.ErrorIs(t, err, ErrEmptyCollection)
			assert.Equal(t, 0, es[0].Watchers())
		})
	}
}

func TestGroupRenameKeepsNameIndex(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			es := populate(t, s, 1000)
			g := newTestGroup(t, s, strategy, "g", es...)

			for i := 0; i < 100; i++ {
				require.NoError(t, es[i*10].Rename(fmt.Sprintf("renamed%d", i)))
			}
			for i := 0; i < 100; i++ {
				got, err := g.Get(fmt.Sprintf("renamed%d", i))
				require.NoError(t, err)
				assert.Same(t, es[i*10], got)

				_, err = g.Get(fmt.Sprintf("e%d", i*10))
				assert.ErrorIs(t, err, ErrNotFound)
			}
			assert.Equal(t, 1000, g.Len())
		})
	}
}

func TestGroupGetAgreesOnceRenameReturns(t *testing.T) {
	s := New()
	es := populate(t, s, 8)
	g := newTestGroup(t, s, Dense, "g", es...)

	var wg sync.WaitGroup
	for i, e := range es {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 20 {
				name := fmt.Sprintf("r%d_%d", i, round)
				if !assert.NoError(t, e.Rename(name)) {
					return
				}
				got, err := g.Get(name)
				if assert.NoError(t, err) {
					assert.Same(t, e, got)
				}
			}
		}()
	}
	wg.Wait()
	assertConsistent(t, g)
}

func TestGroupDropsDestroyedMembers(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			es := populate(t, s, 3)
			g1 := newTestGroup(t, s, strategy, "g1", es...)
			g2 := newTestGroup(t, s, strategy, "g2", es[1])

			require.NoError(t, es[1].Destroy())

			assert.Equal(t, []*Entity{es[0], es[2]}, g1.Items())
			assert.Equal(t, 0, g2.Len())
			assert.False(t, g1.ContainsName("e1"))
			assertConsistent(t, g1)
		})
	}
}

func TestGroupOwnership(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			s := New()
			owned := mustCreate(t, s, "owned", nil)
			contained := mustCreate(t, s, "contained", nil)
			g := newTestGroup(t, s, strategy, "areas")

			_, err := g.AddAsChild(owned)
			require.NoError(t, err)
			_, err = g.Add(contained)
			require.NoError(t, err)

			assert.Same(t, g.Entity, owned.Parent())
			assert.Equal(t, "areas.owned", owned.Path())
			assert.Nil(t, contained.Parent())

			got, err := g.Get("areas.owned")
			require.NoError(t, err)
			assert.Same(t, owned, got)

			// discard keeps the parent link
			g.Discard(owned)
			assert.Same(t, g.Entity, owned.Parent())
			_, err = g.AddAsChild(owned)
			require.NoError(t, err)

			_, err = g.AddAsChild(g.Entity)
			assert.ErrorIs(t, err, ErrSelfParent)

			require.NoError(t, g.Destroy())
			assert.False(t, owned.Alive())
			assert.True(t, contained.Alive())
			assert.Equal(t, 0, g.Len())
			assert.Equal(t, 0, contained.Watchers())

			_, err = g.Add(contained)
			assert.ErrorIs(t, err, ErrDestroyed)
		})
	}
}

func TestGroupUpgradeToOwned(t *testing.T) {
	s := New()
	e := mustCreate(t, s, "e", nil)
	g := newTestGroup(t, s, Dense, "g", e)

	pos, err := g.AddAsChild(e)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Equal(t, "g.e", e.Path())
	assert.Equal(t, 1, g.Len())
	assertConsistent(t, g)
}

func TestGroupAddPath(t *testing.T) {
	s := New()
	p := mustCreate(t, s, "p", nil)
	c := mustCreate(t, s, "c", p)
	g := newTestGroup(t, s, Dense, "g")

	pos, err := g.AddPath("p.c")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.True(t, g.Contains(c))

	_, err = g.AddPath("p.none")
	assert.ErrorIs(t, err, ErrNotFound)

	other := New()
	foreign := mustCreate(t, other, "f", nil)
	_, err = g.Add(foreign)
	assert.ErrorIs(t, err, ErrForeignSpace)
}

func TestGroupSameNameFromDifferentScopes(t *testing.T) {
	s := New()
	a := mustCreate(t, s, "a", nil)
	b := mustCreate(t, s, "b", nil)
	x1 := mustCreate(t, s, "x", a)
	x2 := mustCreate(t, s, "x", b)
	g := newTestGroup(t, s, Dense, "g", x1, x2)

	got, err := g.Get("x")
	require.NoError(t, err)
	assert.Same(t, x1, got)

	got, err = g.Get("b.x")
	require.NoError(t, err)
	assert.Same(t, x2, got)

	g.Discard(x1)
	got, err = g.Get("x")
	require.NoError(t, err)
	assert.Same(t, x2, got)
}

func TestDestroyMembers(t *testing.T) {
	s := New()
	es := populate(t, s, 3)
	nested := mustCreate(t, s, "nested", es[0])
	g := newTestGroup(t, s, Complete, "g", es[0], nested, es[1], es[2])

	require.NoError(t, g.DestroyMembers())
	assert.Equal(t, 0, g.Len())
	assert.True(t, g.Alive())
	for _, e := range es {
		assert.False(t, e.Alive())
	}
}
