package world

import (
	"fmt"

	"github.com/zeusync/intellitrack/internal/config"
	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/space"
)

// Build creates a world with the scenes, detectors and assignments of cfg.
// Nothing is left in the space when it fails.
func Build(s *space.Space, cfg config.WorldConfig, opts ...Option) (*World, error) {
	w, err := New(s, cfg.Name, opts...)
	if err != nil {
		return nil, err
	}
	if err = w.populate(cfg); err != nil {
		_ = w.Destroy()
		return nil, fmt.Errorf("build world %q: %w", cfg.Name, err)
	}
	w.log.Info("world built",
		log.Int("scenes", w.scenes.Len()),
		log.Int("detectors", w.detectors.Len()),
	)
	return w, nil
}

func (w *World) populate(cfg config.WorldConfig) error {
	for _, sc := range cfg.Scenes {
		scene, err := w.CreateScene(SceneSpec{
			Name:      sc.Name,
			Cameras:   sc.Cameras,
			Width:     sc.Width,
			Height:    sc.Height,
			Framerate: sc.Framerate,
		})
		if err != nil {
			return err
		}
		for _, a := range sc.Areas {
			if _, err = scene.CreateArea(a.Name, polygonOf(a.Polygon)); err != nil {
				return err
			}
		}
		for _, l := range sc.Lines {
			if _, err = scene.CreateLine(l.Name, Segment{pointOf(l.From), pointOf(l.To)}); err != nil {
				return err
			}
		}
	}
	for _, d := range cfg.Detectors {
		kind, err := ParseDetectorKind(d.Kind)
		if err != nil {
			return fmt.Errorf("detector %q: %w", d.Name, err)
		}
		det, err := w.CreateDetector(d.Name, kind)
		if err != nil {
			return err
		}
		if d.MaxMisses != 0 || d.MinIoU != 0 {
			det.SetTracking(d.MaxMisses, d.MinIoU)
		}
	}
	for _, a := range cfg.Assignments {
		if err := w.AssignDetector(a.Detector, a.Scene); err != nil {
			return err
		}
	}
	return nil
}
