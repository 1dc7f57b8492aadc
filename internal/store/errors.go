package store

import "errors"

// ErrNotFound indicates a missing record lookup. Stale contact ids after
// a merge resolve to this; callers translate it to an empty result rather
// than an error surface.
var ErrNotFound = errors.New("record not found")

// ErrUnknownKind indicates a data row outside the closed kind set.
var ErrUnknownKind = errors.New("unsupported data kind")
