package pty

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the Manager. Callers match them with errors.Is.
var (
	// ErrSetup is returned when a terminal could not be created. Nothing is
	// registered when it is returned.
	ErrSetup = errors.New("terminal setup failed")

	// ErrNotFound is returned when an id does not name a live terminal.
	ErrNotFound = errors.New("terminal not found")

	// ErrIO is returned when writing to or resizing a live terminal fails.
	// The terminal stays registered.
	ErrIO = errors.New("terminal i/o failed")

	// ErrInvalidSize is returned for a zero row or column count.
	ErrInvalidSize = errors.New("invalid terminal size")

	// ErrManagerClosed is returned by Create after CloseAll.
	ErrManagerClosed = errors.New("terminal manager is closed")
)

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
