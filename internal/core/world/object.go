package world

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/intellitrack/internal/core/space"
)

// TrackedObject is something a detector follows across frames.
type TrackedObject struct {
	*space.Entity
	id       uuid.UUID
	detector *Detector

	mu        sync.RWMutex
	box       RotatedBox
	label     string
	firstSeen time.Time
	lastSeen  time.Time
	hits      int
}

func (o *TrackedObject) UUID() uuid.UUID     { return o.id }
func (o *TrackedObject) Detector() *Detector { return o.detector }

func (o *TrackedObject) observe(s Sighting) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.box = s.Box
	if s.Label != "" {
		o.label = s.Label
	}
	if s.At.After(o.lastSeen) {
		o.lastSeen = s.At
	}
	o.hits++
}

func (o *TrackedObject) Box() RotatedBox {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.box
}

// Position is the center of the last seen box.
func (o *TrackedObject) Position() Point {
	return o.Box().Center
}

func (o *TrackedObject) Label() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.label
}

func (o *TrackedObject) FirstSeen() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.firstSeen
}

func (o *TrackedObject) LastSeen() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastSeen
}

// Hits counts the sightings recorded for the object.
func (o *TrackedObject) Hits() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hits
}
