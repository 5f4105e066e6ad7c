package graph

import "errors"

var (
	// ErrNotFound indicates the requested id was never known to the store,
	// even after alias resolution.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateID indicates an entity id collision on creation. Ids are
	// never reused, so an id already present as an alias also collides.
	ErrDuplicateID = errors.New("duplicate entity id")

	// ErrDanglingReference indicates a relationship endpoint that does not
	// resolve to a live entity.
	ErrDanglingReference = errors.New("dangling relationship endpoint")
)
