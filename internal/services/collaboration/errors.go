package collaboration

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotJoined       = errors.New("connection has not joined a session")
	ErrInvalidRole     = errors.New("only the master may do this")
	ErrNoMaster        = errors.New("session has no master")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	errUnknownEvent    = errors.New("unknown event")
	errBadPayload      = errors.New("malformed payload")
)

// clientMessage is the text sent in the error event for err.
func clientMessage(event string, err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, ErrNotJoined):
		return "User not in any session"
	case errors.Is(err, ErrInvalidRole):
		return "Only master can send time updates"
	case errors.Is(err, ErrNoMaster):
		return "No master found for this session"
	case errors.Is(err, ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, ErrEmptyQuestion):
		return "Question cannot be empty"
	case errors.Is(err, errUnknownEvent):
		return fmt.Sprintf("Unknown event %q", event)
	case errors.Is(err, errBadPayload):
		return fmt.Sprintf("Invalid payload for %s", event)
	default:
		return fmt.Sprintf("Failed to handle %s", event)
	}
}
