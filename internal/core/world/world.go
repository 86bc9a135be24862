package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/space"
	"github.com/zeusync/intellitrack/pkg/concurrent"
	"github.com/zeusync/intellitrack/pkg/sequence"
)

// Entity kinds created by this package.
const (
	KindWorld    = "world"
	KindScene    = "scene"
	KindArea     = "area"
	KindLine     = "line"
	KindDetector = "detector"
	KindObject   = "object"
)

var (
	ErrUnknownKind      = errors.New("unknown detector kind")
	ErrTrackedElsewhere = errors.New("object is tracked by another detector")
)

type options struct {
	strategy    space.Strategy
	log         log.Log
	parallelism int
}

type Option func(*options)

// WithStrategy selects the layout of every group the world creates.
func WithStrategy(s space.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

func WithLogger(l log.Log) Option {
	return func(o *options) { o.log = l }
}

// WithParallelism bounds the number of scenes Compute runs at once.
// Zero or less means one goroutine per scene.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// World is the root of a tracking setup. Its scenes and detectors live in
// two owned groups under the world entity:
//
//	<world>.scenes.<scene>.areas.<area>
//	<world>.scenes.<scene>.lines.<line>
//	<world>.detectors.<detector>.objects.<uuid>
type World struct {
	*space.Entity

	space *space.Space
	opts  options
	log   log.Log

	scenes    *space.Group
	detectors *space.Group

	// nodes maps entity ids to the domain value wrapping them.
	nodes   *space.WeakTable[uint64]
	objects *space.WeakTable[uuid.UUID]
}

func New(s *space.Space, name string, opts ...Option) (*World, error) {
	o := options{log: log.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	e, err := s.Create(space.EntityConfig{Kind: KindWorld, Name: name})
	if err != nil {
		return nil, fmt.Errorf("create world: %w", err)
	}
	w := &World{
		Entity:  e,
		space:   s,
		opts:    o,
		log:     o.log.Named("world").With(log.String("world", name)),
		nodes:   space.NewWeakTable[uint64](),
		objects: space.NewWeakTable[uuid.UUID](),
	}
	if w.scenes, err = w.newGroup("scenes", e); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if w.detectors, err = w.newGroup("detectors", e); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	return w, nil
}

func (w *World) newGroup(name string, parent *space.Entity) (*space.Group, error) {
	g, err := space.NewGroup(w.space, space.GroupConfig{
		Name:     name,
		Parent:   parent,
		Strategy: w.opts.strategy,
	})
	if err != nil {
		return nil, fmt.Errorf("create group %s: %w", name, err)
	}
	return g, nil
}

func (w *World) Scenes() *space.Group    { return w.scenes }
func (w *World) Detectors() *space.Group { return w.detectors }

// ObjectCount is the number of objects tracked by all detectors.
func (w *World) ObjectCount() int { return w.objects.Len() }

// register binds v to e so lookups by entity find it again. The binding
// goes away with the entity.
func (w *World) register(e *space.Entity, v any) (*space.Ref, error) {
	r, err := space.Watch(e, v)
	if err != nil {
		return nil, err
	}
	if err = w.nodes.Set(e.ID(), r); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func lookup[T any](w *World, e *space.Entity) (T, error) {
	var zero T
	r, err := w.nodes.Get(e.ID())
	if err != nil {
		return zero, fmt.Errorf("%s: %w", e.Path(), err)
	}
	data, err := r.Data()
	if err != nil {
		return zero, err
	}
	v, ok := data.(T)
	if !ok {
		return zero, fmt.Errorf("%s has kind %s: %w", e.Path(), e.Kind(), space.ErrNotFound)
	}
	return v, nil
}

// members converts the live members of g into their domain values,
// skipping members that belong to another package.
func members[T any](w *World, g *space.Group) []T {
	return sequence.ToArray(
		sequence.From(g.Items()).Filter(func(e *space.Entity) bool {
			_, err := lookup[T](w, e)
			return err == nil
		}),
		func(e *space.Entity) T {
			v, _ := lookup[T](w, e)
			return v
		},
	)
}

// SceneSpec describes a scene to create.
type SceneSpec struct {
	Name      string
	Cameras   []string
	Width     int
	Height    int
	Framerate int
}

func (w *World) CreateScene(spec SceneSpec) (*Scene, error) {
	sc := &Scene{
		world:     w,
		cameras:   append([]string(nil), spec.Cameras...),
		width:     spec.Width,
		height:    spec.Height,
		framerate: spec.Framerate,
		title:     spec.Name,
	}
	e, err := w.space.Create(space.EntityConfig{
		Kind:     KindScene,
		Name:     spec.Name,
		Parent:   w.scenes.Entity,
		OnRename: sc.retitle,
	})
	if err != nil {
		return nil, fmt.Errorf("create scene %q: %w", spec.Name, err)
	}
	sc.Entity = e
	if err = sc.init(); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if _, err = w.register(e, sc); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if _, err = w.scenes.AddAsChild(e); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	w.log.Debug("scene created", log.String("scene", spec.Name), log.Int("cameras", len(spec.Cameras)))
	return sc, nil
}

func (w *World) Scene(name string) (*Scene, error) {
	e, err := w.scenes.Get(name)
	if err != nil {
		return nil, fmt.Errorf("scene %q: %w", name, err)
	}
	return lookup[*Scene](w, e)
}

func (w *World) SceneList() []*Scene {
	return members[*Scene](w, w.scenes)
}

func (w *World) CreateDetector(name string, kind DetectorKind) (*Detector, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("create detector %q (%s): %w", name, kind, ErrUnknownKind)
	}
	e, err := w.space.Create(space.EntityConfig{
		Kind:   KindDetector,
		Name:   name,
		Parent: w.detectors.Entity,
	})
	if err != nil {
		return nil, fmt.Errorf("create detector %q: %w", name, err)
	}
	d := &Detector{Entity: e, world: w, class: kind}
	if d.objects, err = w.newGroup("objects", e); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if _, err = w.register(e, d); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if _, err = w.detectors.AddAsChild(e); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	w.log.Debug("detector created", log.String("detector", name), log.String("class", string(kind)))
	return d, nil
}

func (w *World) Detector(name string) (*Detector, error) {
	e, err := w.detectors.Get(name)
	if err != nil {
		return nil, fmt.Errorf("detector %q: %w", name, err)
	}
	return lookup[*Detector](w, e)
}

func (w *World) DetectorList() []*Detector {
	return members[*Detector](w, w.detectors)
}

// AssignDetector makes the named detector feed the named scene.
func (w *World) AssignDetector(detector, scene string) error {
	d, err := w.Detector(detector)
	if err != nil {
		return err
	}
	sc, err := w.Scene(scene)
	if err != nil {
		return err
	}
	return sc.AddDetector(d)
}

// Objects looks tracked objects up by detector and object name. Either
// name may be empty:
//
//	both set      the named object of the named detector
//	detector only every object of that detector
//	object only   the named object of the first detector tracking it
//	neither       every object of every detector
func (w *World) Objects(detector, object string) ([]*TrackedObject, error) {
	switch {
	case detector != "":
		d, err := w.Detector(detector)
		if err != nil {
			return nil, err
		}
		if object == "" {
			return d.Objects(), nil
		}
		o, err := d.Object(object)
		if err != nil {
			return nil, err
		}
		return []*TrackedObject{o}, nil
	case object != "":
		d, ok := sequence.From(w.DetectorList()).Find(func(d *Detector) bool {
			_, err := d.Object(object)
			return err == nil
		})
		if !ok {
			return nil, fmt.Errorf("object %q: %w", object, space.ErrNotFound)
		}
		o, err := d.Object(object)
		if err != nil {
			return nil, err
		}
		return []*TrackedObject{o}, nil
	default:
		return objectsOf(w.DetectorList()), nil
	}
}

func objectsOf(ds []*Detector) []*TrackedObject {
	return sequence.Flatten(sequence.From(sequence.ToArray(sequence.From(ds), (*Detector).Objects))).Collect()
}

// ObjectByID finds a tracked object by its identifier, whichever detector
// tracks it.
func (w *World) ObjectByID(id uuid.UUID) (*TrackedObject, error) {
	r, err := w.objects.Get(id)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}
	data, err := r.Data()
	if err != nil {
		return nil, err
	}
	return data.(*TrackedObject), nil
}

// SceneFunc processes one scene during Compute.
type SceneFunc func(ctx context.Context, sc *Scene) error

// Compute runs fn for every scene concurrently. Changes to the scene group
// requested meanwhile are applied once every scene is done. The first
// error cancels the context of the remaining calls and is returned.
func (w *World) Compute(ctx context.Context, fn SceneFunc) error {
	release := w.scenes.Hold()
	defer release()

	scenes := sequence.From(w.SceneList())
	if err := concurrent.ForEach[*Scene](ctx, scenes, w.opts.parallelism, fn); err != nil {
		return fmt.Errorf("compute %s: %w", w.Path(), err)
	}
	return nil
}
