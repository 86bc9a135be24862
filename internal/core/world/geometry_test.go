package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Segment
		want Point
		ok   bool
	}{
		{
			name: "cross",
			a:    Segment{Point{5, 0}, Point{5, 10}},
			b:    Segment{Point{0, 5}, Point{10, 5}},
			want: Point{5, 5},
			ok:   true,
		},
		{
			name: "diagonals",
			a:    Segment{Point{0, 0}, Point{10, 10}},
			b:    Segment{Point{0, 10}, Point{10, 0}},
			want: Point{5, 5},
			ok:   true,
		},
		{
			name: "touching endpoints",
			a:    Segment{Point{0, 0}, Point{10, 0}},
			b:    Segment{Point{10, 0}, Point{10, 10}},
			want: Point{10, 0},
			ok:   true,
		},
		{
			name: "lines meet outside the segments",
			a:    Segment{Point{0, 0}, Point{10, 10}},
			b:    Segment{Point{11, 10}, Point{21, 0}},
		},
		{
			name: "parallel",
			a:    Segment{Point{0, 0}, Point{10, 0}},
			b:    Segment{Point{0, 1}, Point{10, 1}},
		},
		{
			name: "collinear",
			a:    Segment{Point{0, 0}, Point{10, 0}},
			b:    Segment{Point{5, 0}, Point{15, 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Intersect(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want.X, got.X, 1e-9)
				assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			}
		})
	}
}

func TestPolygonContains(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.True(t, square.Contains(Point{5, 5}))
	assert.True(t, square.Contains(Point{0.5, 9.5}))
	assert.False(t, square.Contains(Point{-1, 5}))
	assert.False(t, square.Contains(Point{5, 11}))

	// concave "L"
	l := Polygon{{0, 0}, {4, 0}, {4, 1}, {1, 1}, {1, 4}, {0, 4}}
	assert.True(t, l.Contains(Point{0.5, 3}))
	assert.False(t, l.Contains(Point{3, 3}))

	assert.False(t, Polygon{{0, 0}, {1, 1}}.Contains(Point{0.5, 0.5}))
}

func TestSegmentSide(t *testing.T) {
	s := Segment{Point{0, 0}, Point{10, 0}}
	assert.Equal(t, 1, s.Side(Point{5, 5}))
	assert.Equal(t, -1, s.Side(Point{5, -5}))
	assert.Equal(t, 0, s.Side(Point{20, 0}))
	assert.Equal(t, 10.0, s.Length())
}

func TestBoxConversions(t *testing.T) {
	b := BoundingBox{X: 10, Y: 20, W: 4, H: 2}
	r := b.Rotated()
	assert.Equal(t, Point{12, 21}, r.Center)
	assert.Equal(t, b, r.Bounding())

	c := r.Contour()
	assert.Equal(t, [4]Point{{10, 20}, {14, 20}, {14, 22}, {10, 22}}, c)

	r.Angle = 90
	turned := r.Bounding()
	assert.InDelta(t, 2, turned.W, 1e-9)
	assert.InDelta(t, 4, turned.H, 1e-9)
	assert.InDelta(t, 11, turned.X, 1e-9)
	assert.InDelta(t, 19, turned.Y, 1e-9)
}
