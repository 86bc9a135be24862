package space

// Watcher is notified about identity changes of an entity it indexes.
// Notifications are delivered after the Space lock is released, so a
// Watcher may call back into the Space. Between the unlock and the
// notification, readers on other goroutines can see the entity's new name
// before an index kept by the Watcher does. Rename returns only after every
// Watcher has run.
type Watcher interface {
	EntityRenamed(e *Entity, oldName string)
	EntityDestroyed(e *Entity)
}

// WatchFuncs adapts plain functions to Watcher. Nil fields are skipped.
type WatchFuncs struct {
	Renamed   func(e *Entity, oldName string)
	Destroyed func(e *Entity)
}

func (w WatchFuncs) EntityRenamed(e *Entity, oldName string) {
	if w.Renamed != nil {
		w.Renamed(e, oldName)
	}
}

func (w WatchFuncs) EntityDestroyed(e *Entity) {
	if w.Destroyed != nil {
		w.Destroyed(e)
	}
}

// Event types published on the Space event bus.
const (
	EventCreated    = "entity.created"
	EventRenamed    = "entity.renamed"
	EventReparented = "entity.reparented"
	EventDestroyed  = "entity.destroyed"
)

// EntityEvent is the payload of every Space bus event.
type EntityEvent struct {
	ID      uint64 `json:"id"`
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	OldName string `json:"old_name,omitempty"`
	OldPath string `json:"old_path,omitempty"`
}
