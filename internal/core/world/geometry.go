package world

import "math"

type Point struct {
	X, Y float64
}

func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Scale(k float64) Point { return Point{p.X * k, p.Y * k} }

// Cross is the z component of the cross product of p and q.
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }

type Size struct {
	W, H float64
}

// BoundingBox is an axis-aligned box anchored at its top-left corner.
type BoundingBox struct {
	X, Y, W, H float64
}

func (b BoundingBox) Center() Point { return Point{b.X + b.W/2, b.Y + b.H/2} }

// Rotated returns the same box as an unrotated RotatedBox.
func (b BoundingBox) Rotated() RotatedBox {
	return RotatedBox{Center: b.Center(), Size: Size{b.W, b.H}}
}

// RotatedBox is a box around Center turned by Angle degrees clockwise.
type RotatedBox struct {
	Center Point
	Size   Size
	Angle  float64
}

// Contour returns the four corners, starting top-left and going clockwise.
func (r RotatedBox) Contour() [4]Point {
	hw, hh := r.Size.W/2, r.Size.H/2
	corners := [4]Point{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	rad := r.Angle * math.Pi / 180
	sin, cos := math.Sincos(rad)
	for i, c := range corners {
		corners[i] = Point{
			X: r.Center.X + c.X*cos - c.Y*sin,
			Y: r.Center.Y + c.X*sin + c.Y*cos,
		}
	}
	return corners
}

// Bounding returns the smallest axis-aligned box holding the contour.
func (r RotatedBox) Bounding() BoundingBox {
	if r.Angle == 0 {
		return BoundingBox{r.Center.X - r.Size.W/2, r.Center.Y - r.Size.H/2, r.Size.W, r.Size.H}
	}
	c := r.Contour()
	minX, minY := c[0].X, c[0].Y
	maxX, maxY := minX, minY
	for _, p := range c[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return BoundingBox{minX, minY, maxX - minX, maxY - minY}
}

type Segment struct {
	From, To Point
}

func (s Segment) Length() float64 {
	d := s.To.Sub(s.From)
	return math.Hypot(d.X, d.Y)
}

// Side reports on which side of the segment's line p lies: 1 for the left,
// -1 for the right and 0 when p is on the line.
func (s Segment) Side(p Point) int {
	c := s.To.Sub(s.From).Cross(p.Sub(s.From))
	switch {
	case c > 0:
		return 1
	case c < 0:
		return -1
	default:
		return 0
	}
}

// Intersect returns the point where two segments meet. Touching endpoints
// count; parallel and collinear segments never intersect.
func Intersect(a, b Segment) (Point, bool) {
	r := a.To.Sub(a.From)
	s := b.To.Sub(b.From)
	d := r.Cross(s)
	if d == 0 {
		return Point{}, false
	}
	qp := b.From.Sub(a.From)
	t := qp.Cross(s) / d
	u := qp.Cross(r) / d
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return a.From.Add(r.Scale(t)), true
}

type Polygon []Point

// Contains reports whether p lies inside the polygon (even-odd rule).
func (pg Polygon) Contains(p Point) bool {
	if len(pg) < 3 {
		return false
	}
	inside := false
	j := len(pg) - 1
	for i := range pg {
		a, b := pg[i], pg[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

func pointOf(v [2]float64) Point { return Point{v[0], v[1]} }

func polygonOf(vs [][2]float64) Polygon {
	pg := make(Polygon, len(vs))
	for i, v := range vs {
		pg[i] = pointOf(v)
	}
	return pg
}
