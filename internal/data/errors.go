package data

import "errors"

// Sentinel errors returned by Store operations. Callers should match with
// errors.Is rather than comparing strings.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDecision indicates an insert reused an existing decision ID.
	ErrDuplicateDecision = errors.New("duplicate decision id")
)
