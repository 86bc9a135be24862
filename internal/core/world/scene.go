package world

import (
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/space"
	"github.com/zeusync/intellitrack/pkg/sequence"
)

// Scene is a view watched by one or more cameras, with named areas and
// counting lines, fed by the detectors assigned to it.
type Scene struct {
	*space.Entity
	world *World

	areas     *space.Group // owned
	lines     *space.Group // owned
	detectors *space.Group // assigned, not owned

	mu        sync.RWMutex
	title     string
	cameras   []string
	width     int
	height    int
	framerate int
}

func (sc *Scene) init() error {
	var err error
	if sc.areas, err = sc.world.newGroup("areas", sc.Entity); err != nil {
		return err
	}
	if sc.lines, err = sc.world.newGroup("lines", sc.Entity); err != nil {
		return err
	}
	sc.detectors, err = sc.world.newGroup("detectors", sc.Entity)
	return err
}

// retitle keeps the display title in step with the entity name.
func (sc *Scene) retitle(e *space.Entity, oldName string) {
	name := e.Name()
	sc.mu.Lock()
	if sc.title == oldName {
		sc.title = name
	}
	sc.mu.Unlock()
	sc.world.log.Debug("scene renamed", log.String("from", oldName), log.String("to", name))
}

func (sc *Scene) Title() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.title
}

func (sc *Scene) SetTitle(title string) {
	sc.mu.Lock()
	sc.title = title
	sc.mu.Unlock()
}

func (sc *Scene) Cameras() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return slices.Clone(sc.cameras)
}

// Resolution returns width, height and framerate.
func (sc *Scene) Resolution() (int, int, int) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.width, sc.height, sc.framerate
}

func (sc *Scene) AreaGroup() *space.Group     { return sc.areas }
func (sc *Scene) LineGroup() *space.Group     { return sc.lines }
func (sc *Scene) DetectorGroup() *space.Group { return sc.detectors }

// Area is a named polygon inside a scene.
type Area struct {
	*space.Entity
	Polygon Polygon
}

func (a *Area) Contains(p Point) bool { return a.Polygon.Contains(p) }

// Line is a named counting line inside a scene.
type Line struct {
	*space.Entity
	Segment Segment
}

// Crossed reports whether moving from one point to another crosses the line.
func (l *Line) Crossed(from, to Point) bool {
	_, ok := Intersect(l.Segment, Segment{from, to})
	return ok
}

func (sc *Scene) CreateArea(name string, polygon Polygon) (*Area, error) {
	if len(polygon) < 3 {
		return nil, fmt.Errorf("area %q needs at least 3 points, got %d", name, len(polygon))
	}
	e, err := sc.world.space.Create(space.EntityConfig{Kind: KindArea, Name: name, Parent: sc.areas.Entity})
	if err != nil {
		return nil, fmt.Errorf("create area %q: %w", name, err)
	}
	a := &Area{Entity: e, Polygon: slices.Clone(polygon)}
	if err = sc.adopt(sc.areas, e, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (sc *Scene) CreateLine(name string, seg Segment) (*Line, error) {
	if seg.From == seg.To {
		return nil, fmt.Errorf("line %q has zero length", name)
	}
	e, err := sc.world.space.Create(space.EntityConfig{Kind: KindLine, Name: name, Parent: sc.lines.Entity})
	if err != nil {
		return nil, fmt.Errorf("create line %q: %w", name, err)
	}
	l := &Line{Entity: e, Segment: seg}
	if err = sc.adopt(sc.lines, e, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (sc *Scene) adopt(g *space.Group, e *space.Entity, v any) error {
	if _, err := sc.world.register(e, v); err != nil {
		_ = e.Destroy()
		return err
	}
	if _, err := g.AddAsChild(e); err != nil {
		_ = e.Destroy()
		return err
	}
	return nil
}

func (sc *Scene) Area(name string) (*Area, error) {
	e, err := sc.areas.Get(name)
	if err != nil {
		return nil, fmt.Errorf("area %q: %w", name, err)
	}
	return lookup[*Area](sc.world, e)
}

func (sc *Scene) Line(name string) (*Line, error) {
	e, err := sc.lines.Get(name)
	if err != nil {
		return nil, fmt.Errorf("line %q: %w", name, err)
	}
	return lookup[*Line](sc.world, e)
}

func (sc *Scene) Areas() []*Area { return members[*Area](sc.world, sc.areas) }
func (sc *Scene) Lines() []*Line { return members[*Line](sc.world, sc.lines) }

// AddDetector assigns d to the scene. The detector stays where it is in
// the tree; destroying it drops the assignment.
func (sc *Scene) AddDetector(d *Detector) error {
	if _, err := sc.detectors.Add(d.Entity); err != nil {
		return fmt.Errorf("assign %s to %s: %w", d.Path(), sc.Path(), err)
	}
	return nil
}

func (sc *Scene) RemoveDetector(d *Detector) { sc.detectors.Discard(d.Entity) }

func (sc *Scene) Detectors() []*Detector {
	return members[*Detector](sc.world, sc.detectors)
}

// Objects returns the objects tracked by every detector of the scene.
func (sc *Scene) Objects() []*TrackedObject {
	return objectsOf(sc.Detectors())
}

// Locate returns the areas containing p, in creation order.
func (sc *Scene) Locate(p Point) []*Area {
	return sequence.From(sc.Areas()).Filter(func(a *Area) bool {
		return a.Contains(p)
	}).Collect()
}

// Crossings returns the lines crossed by moving from one point to another.
func (sc *Scene) Crossings(from, to Point) []*Line {
	return sequence.From(sc.Lines()).Filter(func(l *Line) bool {
		return l.Crossed(from, to)
	}).Collect()
}
