package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/intellitrack/internal/config"
	"github.com/zeusync/intellitrack/internal/core/space"
)

func storeConfig() config.WorldConfig {
	return config.WorldConfig{
		Name: "store",
		Scenes: []config.SceneConfig{
			{
				Name:      "entrance",
				Cameras:   []string{"0"},
				Width:     640,
				Height:    480,
				Framerate: 25,
				Areas: []config.AreaConfig{
					{Name: "door", Polygon: [][2]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}}},
					{Name: "mat", Polygon: [][2]float64{{50, 50}, {150, 50}, {150, 150}, {50, 150}}},
				},
				Lines: []config.LineConfig{
					{Name: "threshold", From: [2]float64{0, 200}, To: [2]float64{640, 200}},
				},
			},
			{Name: "checkout"},
		},
		Detectors: []config.DetectorConfig{
			{Name: "faces", Kind: "face"},
			{Name: "people", Kind: "people"},
		},
		Assignments: []config.Assignment{
			{Detector: "faces", Scene: "entrance"},
			{Detector: "people", Scene: "entrance"},
			{Detector: "people", Scene: "checkout"},
		},
	}
}

func newWorld(t *testing.T, opts ...Option) (*space.Space, *World) {
	t.Helper()
	s := space.New()
	w, err := Build(s, storeConfig(), opts...)
	require.NoError(t, err)
	return s, w
}

func TestBuildLaysOutTree(t *testing.T) {
	s, w := newWorld(t)

	for _, path := range []string{
		"store",
		"store.scenes.entrance",
		"store.scenes.entrance.areas.door",
		"store.scenes.entrance.lines.threshold",
		"store.scenes.checkout.detectors",
		"store.detectors.faces.objects",
	} {
		_, err := s.Resolve(path)
		assert.NoError(t, err, path)
	}

	sc, err := w.Scene("entrance")
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, sc.Cameras())
	width, height, fps := sc.Resolution()
	assert.Equal(t, []int{640, 480, 25}, []int{width, height, fps})
	assert.Len(t, sc.Areas(), 2)
	assert.Len(t, sc.Lines(), 1)

	var names []string
	for _, d := range sc.Detectors() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"faces", "people"}, names)

	d, err := w.Detector("people")
	require.NoError(t, err)
	assert.Equal(t, People, d.Class())
	// assignment does not move the detector
	assert.Equal(t, "store.detectors.people", d.Path())
}

func TestBuildFailureLeavesNothing(t *testing.T) {
	s := space.New()
	cfg := storeConfig()
	cfg.Detectors = append(cfg.Detectors, config.DetectorConfig{Name: "x", Kind: "sonar"})

	_, err := Build(s, cfg)
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Roots())
}

func TestSceneNamesAreUnique(t *testing.T) {
	s, w := newWorld(t)
	before := s.Len()

	_, err := w.CreateScene(SceneSpec{Name: "entrance"})
	require.ErrorIs(t, err, space.ErrNameConflict)
	assert.Equal(t, before, s.Len())
	assert.Equal(t, 2, w.Scenes().Len())
}

func TestSceneRenameFollowsTree(t *testing.T) {
	s, w := newWorld(t)
	sc, err := w.Scene("entrance")
	require.NoError(t, err)

	require.NoError(t, sc.Rename("lobby"))
	assert.Equal(t, "lobby", sc.Title())

	_, err = w.Scene("entrance")
	assert.ErrorIs(t, err, space.ErrNotFound)
	got, err := w.Scene("lobby")
	require.NoError(t, err)
	assert.Same(t, sc, got)

	a, err := sc.Area("door")
	require.NoError(t, err)
	assert.Equal(t, "store.scenes.lobby.areas.door", a.Path())
	_, err = s.Resolve("store.scenes.entrance.areas.door")
	assert.ErrorIs(t, err, space.ErrNotFound)

	// a custom title survives renames
	sc.SetTitle("Front door")
	require.NoError(t, sc.Rename("front"))
	assert.Equal(t, "Front door", sc.Title())
}

func TestAreasAndLines(t *testing.T) {
	_, w := newWorld(t)
	sc, err := w.Scene("entrance")
	require.NoError(t, err)

	names := func(es []*Area) []string {
		var out []string
		for _, a := range es {
			out = append(out, a.Name())
		}
		return out
	}
	assert.Equal(t, []string{"door", "mat"}, names(sc.Locate(Point{75, 75})))
	assert.Equal(t, []string{"door"}, names(sc.Locate(Point{10, 10})))
	assert.Empty(t, sc.Locate(Point{500, 500}))

	crossed := sc.Crossings(Point{300, 150}, Point{300, 250})
	require.Len(t, crossed, 1)
	assert.Equal(t, "threshold", crossed[0].Name())
	assert.Empty(t, sc.Crossings(Point{300, 150}, Point{400, 150}))

	_, err = sc.CreateArea("thin", Polygon{{0, 0}, {1, 1}})
	assert.Error(t, err)
	_, err = sc.CreateLine("dot", Segment{Point{1, 1}, Point{1, 1}})
	assert.Error(t, err)
	_, err = sc.CreateArea("door", Polygon{{0, 0}, {1, 0}, {1, 1}})
	assert.ErrorIs(t, err, space.ErrNameConflict)
}

func TestUnknownDetectorKind(t *testing.T) {
	_, w := newWorld(t)
	_, err := w.CreateDetector("radar", DetectorKind("radar"))
	assert.ErrorIs(t, err, ErrUnknownKind)

	k, err := ParseDetectorKind("movement")
	require.NoError(t, err)
	assert.Equal(t, Movement, k)
}

func TestTrackAndLookup(t *testing.T) {
	_, w := newWorld(t)
	faces, err := w.Detector("faces")
	require.NoError(t, err)
	people, err := w.Detector("people")
	require.NoError(t, err)

	box := BoundingBox{X: 10, Y: 10, W: 20, H: 40}.Rotated()
	o, err := faces.Track(Sighting{Box: box, Label: "alice"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, o.UUID())
	assert.Equal(t, "store.detectors.faces.objects."+o.UUID().String(), o.Path())
	assert.Equal(t, 1, o.Hits())

	moved := BoundingBox{X: 30, Y: 10, W: 20, H: 40}.Rotated()
	again, err := faces.Track(Sighting{ID: o.UUID(), Box: moved})
	require.NoError(t, err)
	assert.Same(t, o, again)
	assert.Equal(t, 2, again.Hits())
	assert.Equal(t, "alice", again.Label())
	assert.Equal(t, Point{40, 30}, again.Position())

	_, err = people.Track(Sighting{ID: o.UUID()})
	assert.ErrorIs(t, err, ErrTrackedElsewhere)

	byID, err := w.ObjectByID(o.UUID())
	require.NoError(t, err)
	assert.Same(t, o, byID)
	assert.Same(t, faces, o.Detector())
	assert.Equal(t, 1, w.ObjectCount())

	p, err := people.Track(Sighting{Label: "bob"})
	require.NoError(t, err)

	sc, err := w.Scene("entrance")
	require.NoError(t, err)
	assert.Len(t, sc.Objects(), 2)
	checkout, err := w.Scene("checkout")
	require.NoError(t, err)
	assert.Equal(t, []*TrackedObject{p}, checkout.Objects())
}

func TestObjectsQuery(t *testing.T) {
	_, w := newWorld(t)
	faces, _ := w.Detector("faces")
	people, _ := w.Detector("people")
	a, err := faces.Track(Sighting{})
	require.NoError(t, err)
	b, err := people.Track(Sighting{})
	require.NoError(t, err)
	c, err := people.Track(Sighting{})
	require.NoError(t, err)

	got, err := w.Objects("faces", a.Name())
	require.NoError(t, err)
	assert.Equal(t, []*TrackedObject{a}, got)

	got, err = w.Objects("people", "")
	require.NoError(t, err)
	assert.Equal(t, []*TrackedObject{b, c}, got)

	got, err = w.Objects("", c.Name())
	require.NoError(t, err)
	assert.Equal(t, []*TrackedObject{c}, got)

	got, err = w.Objects("", "")
	require.NoError(t, err)
	assert.Equal(t, []*TrackedObject{a, b, c}, got)

	_, err = w.Objects("faces", c.Name())
	assert.ErrorIs(t, err, space.ErrNotFound)
	_, err = w.Objects("", "ghost")
	assert.ErrorIs(t, err, space.ErrNotFound)
	_, err = w.Objects("sonar", "")
	assert.ErrorIs(t, err, space.ErrNotFound)
}

func TestForgetAndExpire(t *testing.T) {
	_, w := newWorld(t)
	faces, _ := w.Detector("faces")

	old := time.Now().Add(-time.Minute)
	stale, err := faces.Track(Sighting{At: old})
	require.NoError(t, err)
	fresh, err := faces.Track(Sighting{})
	require.NoError(t, err)
	gone, err := faces.Track(Sighting{})
	require.NoError(t, err)
	require.Equal(t, 3, w.ObjectCount())

	require.NoError(t, faces.Forget(gone.UUID()))
	_, err = w.ObjectByID(gone.UUID())
	assert.ErrorIs(t, err, space.ErrNotFound)
	assert.ErrorIs(t, faces.Forget(gone.UUID()), space.ErrNotFound)

	assert.Equal(t, 1, faces.Expire(time.Now().Add(-time.Second)))
	assert.False(t, stale.Alive())
	assert.True(t, fresh.Alive())
	assert.Equal(t, 1, w.ObjectCount())
	assert.Equal(t, 1, faces.ObjectGroup().Len())
}

func TestDestroyDetectorDropsAssignments(t *testing.T) {
	_, w := newWorld(t)
	people, _ := w.Detector("people")
	o, err := people.Track(Sighting{})
	require.NoError(t, err)

	require.NoError(t, people.Destroy())

	for _, name := range []string{"entrance", "checkout"} {
		sc, err := w.Scene(name)
		require.NoError(t, err)
		for _, d := range sc.Detectors() {
			assert.NotEqual(t, "people", d.Name())
		}
	}
	assert.False(t, o.Alive())
	_, err = w.ObjectByID(o.UUID())
	assert.ErrorIs(t, err, space.ErrNotFound)
	assert.Equal(t, 1, w.Detectors().Len())
}

func TestComputeVisitsEveryScene(t *testing.T) {
	_, w := newWorld(t, WithParallelism(2))

	var mu sync.Mutex
	seen := map[string]bool{}
	err := w.Compute(context.Background(), func(ctx context.Context, sc *Scene) error {
		mu.Lock()
		seen[sc.Name()] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"entrance": true, "checkout": true}, seen)
}

func TestComputeDefersSceneChanges(t *testing.T) {
	_, w := newWorld(t)

	var during atomic.Int64
	err := w.Compute(context.Background(), func(ctx context.Context, sc *Scene) error {
		if sc.Name() == "entrance" {
			if _, err := w.CreateScene(SceneSpec{Name: "annex"}); err != nil {
				return err
			}
			during.Store(int64(w.Scenes().Len()))
		}
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, during.Load())
	assert.Equal(t, 3, w.Scenes().Len())
	_, err = w.Scene("annex")
	assert.NoError(t, err)
}

func TestComputeStopsOnError(t *testing.T) {
	s := space.New()
	w, err := New(s, "big")
	require.NoError(t, err)
	for i := range 20 {
		_, err := w.CreateScene(SceneSpec{Name: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
	}

	boom := errors.New("boom")
	err = w.Compute(context.Background(), func(ctx context.Context, sc *Scene) error {
		if sc.Name() == "s3" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.Compute(ctx, func(context.Context, *Scene) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObserveAssociatesFrames(t *testing.T) {
	_, w := newWorld(t)
	people, err := w.Detector("people")
	require.NoError(t, err)
	people.SetTracking(2, 0.3)

	frame := func(dx float64) []BoundingBox {
		return []BoundingBox{
			{X: 10 + dx, Y: 10, W: 40, H: 80},
			{X: 300 + dx, Y: 200, W: 40, H: 80},
		}
	}
	start := time.Now()
	first, err := people.Observe(frame(0), "person", start)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.NotEqual(t, first[0].UUID(), first[1].UUID())

	second, err := people.Observe(frame(2), "", start.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Same(t, first[0], second[0])
	assert.Same(t, first[1], second[1])
	assert.Equal(t, 2, first[0].Hits())
	assert.Equal(t, "person", first[0].Label())
	assert.Equal(t, 2, people.ObjectGroup().Len())

	// lost tracks expire after enough empty frames
	for range 5 {
		_, err = people.Observe(nil, "", time.Time{})
		require.NoError(t, err)
	}
	assert.Zero(t, people.Tracks())
	assert.Zero(t, people.ObjectGroup().Len())
	assert.False(t, first[0].Alive())
}
