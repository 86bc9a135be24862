package world

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/space"
)

// DetectorKind names what a detector looks for.
type DetectorKind string

const (
	Face     DetectorKind = "face"
	Eye      DetectorKind = "eye"
	People   DetectorKind = "people"
	Object   DetectorKind = "object"
	Movement DetectorKind = "movement"
	Color    DetectorKind = "color"
)

var detectorKinds = []DetectorKind{Face, Eye, People, Object, Movement, Color}

func (k DetectorKind) Valid() bool { return slices.Contains(detectorKinds, k) }

func ParseDetectorKind(s string) (DetectorKind, error) {
	k := DetectorKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
	}
	return k, nil
}

// Detector owns the objects it tracks. Objects are named by their UUID
// under <detector>.objects.
type Detector struct {
	*space.Entity
	world   *World
	class   DetectorKind
	objects *space.Group

	assocMu sync.Mutex
	assoc   *association
}

// Class is what the detector looks for.
func (d *Detector) Class() DetectorKind { return d.class }

func (d *Detector) ObjectGroup() *space.Group { return d.objects }

// Sighting is one observation reported by a detector. A zero ID starts a
// new track.
type Sighting struct {
	ID    uuid.UUID
	Box   RotatedBox
	Label string
	At    time.Time
}

// Track records a sighting. Known IDs update their object; unknown or zero
// IDs create a new one.
func (d *Detector) Track(s Sighting) (*TrackedObject, error) {
	if s.At.IsZero() {
		s.At = time.Now()
	}
	if s.ID != uuid.Nil {
		if o, err := d.world.ObjectByID(s.ID); err == nil {
			if o.detector != d {
				return nil, fmt.Errorf("track %s on %s: %w", s.ID, d.Path(), ErrTrackedElsewhere)
			}
			o.observe(s)
			return o, nil
		}
	} else {
		s.ID = uuid.New()
	}

	e, err := d.world.space.Create(space.EntityConfig{
		Kind:   KindObject,
		Name:   s.ID.String(),
		Parent: d.objects.Entity,
	})
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", s.ID, err)
	}
	o := &TrackedObject{
		Entity:    e,
		id:        s.ID,
		detector:  d,
		firstSeen: s.At,
	}
	o.observe(s)
	r, err := d.world.register(e, o)
	if err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if err = d.world.objects.Set(s.ID, r); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	if _, err = d.objects.AddAsChild(e); err != nil {
		_ = e.Destroy()
		return nil, err
	}
	d.world.log.Debug("object tracked",
		log.String("detector", d.Name()),
		log.String("object", s.ID.String()),
		log.String("label", s.Label),
	)
	return o, nil
}

// Forget stops tracking the object and destroys it.
func (d *Detector) Forget(id uuid.UUID) error {
	o, err := d.world.ObjectByID(id)
	if err != nil {
		return err
	}
	if o.detector != d {
		return fmt.Errorf("forget %s on %s: %w", id, d.Path(), ErrTrackedElsewhere)
	}
	return o.Destroy()
}

// Expire destroys every object not seen since before and returns how many
// were removed.
func (d *Detector) Expire(before time.Time) int {
	n := 0
	for _, o := range d.Objects() {
		if o.LastSeen().Before(before) && o.Destroy() == nil {
			n++
		}
	}
	return n
}

func (d *Detector) Object(name string) (*TrackedObject, error) {
	e, err := d.objects.Get(name)
	if err != nil {
		return nil, fmt.Errorf("object %q on %s: %w", name, d.Path(), err)
	}
	return lookup[*TrackedObject](d.world, e)
}

func (d *Detector) Objects() []*TrackedObject {
	return members[*TrackedObject](d.world, d.objects)
}
