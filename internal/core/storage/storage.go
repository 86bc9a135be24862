package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/intellitrack/internal/core/space"
)

var (
	ErrNotFound = errors.New("snapshot not found")
	ErrCorrupt  = errors.New("snapshot checksum mismatch")
	ErrClosed   = errors.New("store closed")
)

// Snapshot is the membership of one group, stored by member path.
type Snapshot struct {
	Group    string    `json:"group"`
	Strategy string    `json:"strategy"`
	Members  []string  `json:"members"`
	Checksum uint64    `json:"checksum"`
	SavedAt  time.Time `json:"saved_at"`
}

// Seal stamps the snapshot with its checksum.
func (s *Snapshot) Seal() {
	s.Checksum = Checksum(s.Group, s.Members)
}

func (s *Snapshot) Verify() error {
	if want := Checksum(s.Group, s.Members); s.Checksum != want {
		return fmt.Errorf("group %q: got %016x, want %016x: %w", s.Group, s.Checksum, want, ErrCorrupt)
	}
	return nil
}

// Checksum hashes a group path and its ordered member paths.
func Checksum(group string, members []string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(group)
	for _, m := range members {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(m)
	}
	return d.Sum64()
}

// Store keeps the latest snapshot per group path.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, group string) (Snapshot, error)
	Groups(ctx context.Context) ([]string, error)
	Close() error
}

// SaveGroup snapshots the current members of g.
func SaveGroup(ctx context.Context, st Store, g *space.Group) error {
	items := g.Items()
	snap := Snapshot{
		Group:    g.Path(),
		Strategy: g.Strategy().String(),
		Members:  make([]string, 0, len(items)),
		SavedAt:  time.Now().UTC(),
	}
	for _, e := range items {
		if p := e.Path(); p != "" {
			snap.Members = append(snap.Members, p)
		}
	}
	snap.Seal()
	if err := st.Save(ctx, snap); err != nil {
		return fmt.Errorf("save %s: %w", snap.Group, err)
	}
	return nil
}

// RestoreGroup adds the members recorded for g that still resolve in its
// space, in their saved order, and returns the paths that no longer do.
// Members g already has keep their position.
func RestoreGroup(ctx context.Context, st Store, g *space.Group) (missing []string, err error) {
	snap, err := st.Load(ctx, g.Path())
	if err != nil {
		return nil, err
	}
	if err = snap.Verify(); err != nil {
		return nil, err
	}
	s := g.Space()
	err = g.Batch(func(tx *space.Tx) error {
		for _, p := range snap.Members {
			e, err := s.Resolve(p)
			if err != nil {
				missing = append(missing, p)
				continue
			}
			if _, err = tx.Add(e); err != nil {
				return fmt.Errorf("restore %s into %s: %w", p, snap.Group, err)
			}
		}
		return nil
	})
	return missing, err
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Members = slices.Clone(s.Members)
	return s
}
