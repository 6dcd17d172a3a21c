package pty

// EventType names the variant of an Event. The values double as the event
// names seen by UI clients.
type EventType string

const (
	EventOutput EventType = "terminal-output"
	EventExit   EventType = "terminal-exit"
	EventError  EventType = "terminal-error"
)

// Event is produced by a terminal's reader and carried on the manager's
// event channel. Only the fields of its Type are set.
type Event struct {
	Type       EventType
	TerminalID string
	Data       []byte
	ExitCode   *int
	Message    string
}

// Final reports whether e is the last event of a terminal.
func (e Event) Final() bool {
	return e.Type == EventExit || e.Type == EventError
}

type outputPayload struct {
	TerminalID string `json:"terminal_id"`
	Data       []byte `json:"data"`
}

type exitPayload struct {
	TerminalID string `json:"terminal_id"`
	ExitCode   *int   `json:"exit_code"`
}

type errorPayload struct {
	TerminalID string `json:"terminal_id"`
	Message    string `json:"message"`
}

// Payload returns the JSON shape of e for its Type.
func (e Event) Payload() any {
	switch e.Type {
	case EventExit:
		return exitPayload{TerminalID: e.TerminalID, ExitCode: e.ExitCode}
	case EventError:
		return errorPayload{TerminalID: e.TerminalID, Message: e.Message}
	default:
		return outputPayload{TerminalID: e.TerminalID, Data: e.Data}
	}
}
