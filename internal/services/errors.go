package services

import "errors"

// ErrUnauthenticated is returned when a write operation is attempted without
// an active session identity. Handlers map it to 401.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrNotFound is returned when a record addressed by ID does not exist.
var ErrNotFound = errors.New("not found")
