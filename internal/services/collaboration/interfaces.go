package collaboration

import (
	"context"

	"watchparty/internal/models"
)

// Store is the persistence the realtime layer needs. repository.Store
// satisfies it; tests use testutil.MockStore.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpsertParticipant(ctx context.Context, p *models.Participant) error
	TouchParticipant(ctx context.Context, sessionID, userID string) error
	RemoveParticipant(ctx context.Context, sessionID, userID string) error
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
}

// Answerer is the AI collaborator: one question in, one answer out.
type Answerer interface {
	Answer(ctx context.Context, req models.AnswerRequest) (string, error)
}

// StatusSource reports video processing progress.
type StatusSource interface {
	Status(ctx context.Context, videoURL string) (*models.VideoProcessingStatus, error)
}
