package services

import (
	"context"

	"watchparty/internal/models"
)

/*
Interfaces are declared here, by the consumer, and list only the methods the
services call. The repository package returns concrete types and never
imports this package.
*/

// LLM produces one completion. Implemented by openai.Client and gemini.Client.
type LLM interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	MarkVideoProcessed(ctx context.Context, videoURL string) error
}

type MessageRepository interface {
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
}

type VideoRepository interface {
	GetStatus(ctx context.Context, videoURL string) (*models.VideoProcessingStatus, error)
	UpsertStatus(ctx context.Context, status *models.VideoProcessingStatus) error
	UpdateProgress(ctx context.Context, videoURL string, state models.ProcessingState, progress int, errMsg string) error
}

type TranscriptRepository interface {
	ReplaceSegments(ctx context.Context, videoURL string, in []models.SegmentInput) (int, error)
	CountSegments(ctx context.Context, videoURL string, window models.TimeWindow) (int64, error)
	SegmentsInWindow(ctx context.Context, videoURL string, window models.TimeWindow, limit int) ([]*models.TranscriptSegment, error)
	NearestInWindow(ctx context.Context, videoURL string, window models.TimeWindow, query []float32, limit int) ([]*models.TranscriptSegment, error)
	Unembedded(ctx context.Context, videoURL string) ([]*models.TranscriptSegment, error)
	SetEmbedding(ctx context.Context, segmentID string, embedding []float32) error
}
