package world

import (
	"fmt"
	"sync"
	"time"

	"github.com/LdDl/mot-go/mot"
)

// Default association settings, matching mot's default IoU tracker.
const (
	DefaultMaxMisses = 75
	DefaultMinIoU    = 0.0
)

// association matches raw per-frame boxes to tracks for one detector.
type association struct {
	mu        sync.Mutex
	maxMisses int
	minIoU    float64
	tracker   *mot.IoUTracker[*mot.SimpleBlob]
}

func newAssociation(maxMisses int, minIoU float64) *association {
	if maxMisses <= 0 {
		maxMisses = DefaultMaxMisses
	}
	return &association{
		maxMisses: maxMisses,
		minIoU:    minIoU,
		tracker:   mot.NewIoUTracker[*mot.SimpleBlob](maxMisses, minIoU),
	}
}

// SetTracking replaces the frame association settings and forgets the
// association state. Tracked objects are kept.
func (d *Detector) SetTracking(maxMisses int, minIoU float64) {
	a := newAssociation(maxMisses, minIoU)
	d.assocMu.Lock()
	d.assoc = a
	d.assocMu.Unlock()
}

func (d *Detector) association() *association {
	d.assocMu.Lock()
	defer d.assocMu.Unlock()
	if d.assoc == nil {
		d.assoc = newAssociation(DefaultMaxMisses, DefaultMinIoU)
	}
	return d.assoc
}

// Observe feeds one frame of raw detections. Boxes are matched to the
// tracks of previous frames; matched tracks update their object, new ones
// create an object and tracks missing for too many frames destroy theirs.
// The returned objects are in the order of boxes.
func (d *Detector) Observe(boxes []BoundingBox, label string, at time.Time) ([]*TrackedObject, error) {
	if at.IsZero() {
		at = time.Now()
	}
	a := d.association()
	a.mu.Lock()
	defer a.mu.Unlock()

	blobs := make([]*mot.SimpleBlob, len(boxes))
	for i, b := range boxes {
		blobs[i] = mot.NewSimpleBlob(mot.Rectangle{X: b.X, Y: b.Y, Width: b.W, Height: b.H})
	}
	if err := a.tracker.MatchObjects(blobs); err != nil {
		return nil, fmt.Errorf("match frame on %s: %w", d.Path(), err)
	}

	out := make([]*TrackedObject, len(boxes))
	for i, blob := range blobs {
		o, err := d.Track(Sighting{ID: blob.GetID(), Box: boxes[i].Rotated(), Label: label, At: at})
		if err != nil {
			return nil, err
		}
		out[i] = o
	}

	for _, o := range d.Objects() {
		if _, ok := a.tracker.Objects[o.UUID()]; !ok {
			_ = o.Destroy()
		}
	}
	return out, nil
}

// Tracks is the number of tracks the association currently keeps, lost
// ones included until they expire.
func (d *Detector) Tracks() int {
	a := d.association()
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tracker.Objects)
}

