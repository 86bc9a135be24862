package space

import "errors"

var (
	// Identity errors

	ErrNameConflict = errors.New("name already exists in scope")
	ErrInvalidName  = errors.New("invalid name")

	// Hierarchy errors

	ErrSelfParent = errors.New("entity cannot be its own parent")
	ErrCycle      = errors.New("reparent would create a cycle")

	// Lookup errors

	ErrNotFound     = errors.New("not found")
	ErrDestroyed    = errors.New("entity is destroyed")
	ErrForeignSpace = errors.New("entity belongs to another space")

	// Collection errors

	ErrEmptyCollection = errors.New("collection is empty")
	ErrOutOfRange      = errors.New("index out of range")
)
