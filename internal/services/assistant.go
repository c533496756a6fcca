package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"watchparty/internal/middleware"
	"watchparty/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrAIUnavailable wraps any failure of the language model call.
	ErrAIUnavailable = errors.New("ai unavailable")
	// ErrVideoNotReady means the session has no processed video to talk about.
	ErrVideoNotReady = errors.New("video not ready")
)

// historyForPrompt is how many recent chat messages go into a prompt.
const historyForPrompt = 20

// Assistant answers chat questions about the session's video.
//
// Flow: load session -> pick transcript segments inside the time window
// (ranked by embedding similarity when there are too many) -> add recent
// chat -> one LLM call.
type Assistant struct {
	llm          LLM
	embedder     Embedder // optional
	sessions     SessionRepository
	messages     MessageRepository
	transcripts  TranscriptRepository
	segmentLimit int
}

func NewAssistant(
	llm LLM,
	embedder Embedder,
	sessions SessionRepository,
	messages MessageRepository,
	transcripts TranscriptRepository,
	segmentLimit int,
) *Assistant {
	if segmentLimit <= 0 {
		segmentLimit = 200
	}
	return &Assistant{
		llm:          llm,
		embedder:     embedder,
		sessions:     sessions,
		messages:     messages,
		transcripts:  transcripts,
		segmentLimit: segmentLimit,
	}
}

// Answer returns the assistant's reply. Model failures are reported as
// ErrAIUnavailable; a session without a video as ErrVideoNotReady.
func (a *Assistant) Answer(ctx context.Context, req models.AnswerRequest) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "Assistant.Answer",
		attribute.String("session.id", req.SessionID),
		attribute.String("user.id", req.UserID),
		attribute.String("query.window", req.Window.String()),
	)
	defer span.End()

	if a.llm == nil {
		return "", fmt.Errorf("no language model configured: %w", ErrAIUnavailable)
	}

	session, err := a.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return "", fmt.Errorf("load session: %w", err)
	}
	if !session.HasVideo() {
		return "", ErrVideoNotReady
	}

	segments, err := a.contextSegments(ctx, session.VideoURL, req)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return "", err
	}

	history, err := a.messages.ListMessages(ctx, req.SessionID, historyForPrompt)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return "", fmt.Errorf("load chat history: %w", err)
	}

	prompt := BuildPrompt(PromptInput{
		Question:       req.Question,
		VideoTimestamp: req.VideoTimestamp,
		Window:         req.Window,
		Segments:       segments,
		History:        history,
	})

	answer, err := a.llm.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return "", fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", ErrAIUnavailable)
	}

	middleware.AddSpanEvent(ctx, "answer_generated",
		attribute.Int("context_segments", len(segments)),
		attribute.Int("history_messages", len(history)),
		attribute.Int("answer_length", len(answer)),
	)

	return answer, nil
}

func (a *Assistant) contextSegments(ctx context.Context, videoURL string, req models.AnswerRequest) ([]*models.TranscriptSegment, error) {
	n, err := a.transcripts.CountSegments(ctx, videoURL, req.Window)
	if err != nil {
		return nil, fmt.Errorf("count segments: %w", err)
	}

	if n <= int64(a.segmentLimit) || a.embedder == nil {
		return a.transcripts.SegmentsInWindow(ctx, videoURL, req.Window, a.segmentLimit)
	}

	vectors, err := a.embedder.CreateEmbeddings(ctx, []string{req.Question})
	if err != nil || len(vectors) == 0 {
		// ranking is an optimisation; fall back to video order
		middleware.AddSpanError(ctx, err)
		return a.transcripts.SegmentsInWindow(ctx, videoURL, req.Window, a.segmentLimit)
	}

	return a.transcripts.NearestInWindow(ctx, videoURL, req.Window, vectors[0], a.segmentLimit)
}
