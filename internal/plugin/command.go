// Package plugin defines the contract between the deck host and its
// commands, and the registry that owns them.
package plugin

import "errors"

var (
	// ErrUnknownCommand is returned when no command has the requested name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrDuplicateCommand is returned when two commands share a name.
	ErrDuplicateCommand = errors.New("duplicate command")
)

// Command is one button the host can press and render.
type Command interface {
	Name() string
	DisplayName() string
	Group() string

	// RunCommand handles a press. It may block for a helper round-trip.
	RunCommand(param string)

	// GetDisplayLabel returns the current button text. It must not block.
	GetDisplayLabel(param string) string

	OnLoad() error
	OnUnload() error
}

// DisplayNotifier is how commands ask the host to redraw their button.
type DisplayNotifier interface {
	NotifyDisplayChanged(command string)
}

// DisplayObserver is called with the name of a command whose label changed.
type DisplayObserver func(command string)
