package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterStopsEarly(t *testing.T) {
	seen := 0
	it := From([]int{1, 2, 3, 4, 5, 6}).Filter(func(v int) bool {
		seen++
		return v%2 == 0
	})
	v, ok := it.Find(func(v int) bool { return v > 2 })
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	assert.Equal(t, 4, seen)

	_, ok = it.Find(func(v int) bool { return v > 10 })
	assert.False(t, ok)
}

func TestSortIsStable(t *testing.T) {
	type pair struct {
		k string
		v int
	}
	in := []pair{{"b", 1}, {"a", 2}, {"b", 3}, {"a", 4}}
	got := From(in).Sort(func(x, y pair) bool { return x.k < y.k }).Collect()
	assert.Equal(t, []pair{{"a", 2}, {"a", 4}, {"b", 1}, {"b", 3}}, got)
	// the source is left alone
	assert.Equal(t, "b", in[0].k)
}

func TestFlattenAndGroupBy(t *testing.T) {
	flat := Flatten(From([][]string{{"a", "bb"}, nil, {"cc", "d"}}))
	assert.Equal(t, []string{"a", "bb", "cc", "d"}, flat.Collect())

	groups := GroupBy(flat, func(s string) int { return len(s) })
	assert.Equal(t, map[int][]string{1: {"a", "d"}, 2: {"bb", "cc"}}, groups)
}

func TestToArray(t *testing.T) {
	assert.Equal(t, []int{2, 4}, ToArray(From([]int{1, 2}), func(v int) int { return v * 2 }))
	assert.Nil(t, From[int](nil).Collect())
}
