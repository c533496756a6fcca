package api

import (
	"context"

	"watchparty/internal/models"
	"watchparty/internal/services"
	"watchparty/internal/services/collaboration"
)

/*
The handlers are the consumer, so the interfaces they depend on live here and
name only the methods the handlers call. repository.Store, the processing
service and the collaboration registry and session manager satisfy them; tests pass fakes.
*/

// SessionStore is the persisted side of sessions and chat.
type SessionStore interface {
	CreateSession(ctx context.Context, in *models.SessionCreate) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListActiveSessions(ctx context.Context) ([]*models.Session, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*models.Participant, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
}

// LiveSessions is the in-memory view of who is connected right now.
type LiveSessions interface {
	UserCount(sessionID string) int
	Roster(sessionID string) []collaboration.RosterEntry
}

// ChatService posts messages from outside a connection, so live members see
// them in store order, and answers questions synchronously.
type ChatService interface {
	PostMessage(ctx context.Context, msg *models.ChatMessage) error
	Ask(ctx context.Context, req models.AnswerRequest, displayName string) (question, reply *models.ChatMessage, err error)
}

// VideoProcessor starts and reports video processing.
type VideoProcessor interface {
	Start(ctx context.Context, videoURL, sessionID string) (services.StartOutcome, error)
	Status(ctx context.Context, videoURL string) (*models.VideoProcessingStatus, error)
	IngestTranscript(ctx context.Context, videoURL string, segments []models.SegmentInput) (int, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping() error
}
