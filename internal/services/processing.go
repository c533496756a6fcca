package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"watchparty/internal/middleware"
	"watchparty/internal/models"
	"watchparty/internal/repository"
	"watchparty/internal/workerpool"

	"go.opentelemetry.io/otel/attribute"
)

/*
Video processing turns the ingested transcript of a video into something the
assistant can search: every segment gets an embedding, batch by batch, with
progress written to video_processing_status after each batch. Jobs run on a
bounded worker pool; Start never blocks the caller.

	not_started -> pending -> processing -> completed
	                                    \-> failed (retryable via Start)
*/

const embedBatchSize = 16

// ErrInvalidTranscript marks transcript input rejected before anything is written.
var ErrInvalidTranscript = errors.New("invalid transcript")

// StartOutcome says what Start did.
type StartOutcome string

const (
	StartQueued           StartOutcome = "started"
	StartAlreadyProcessed StartOutcome = "already_processed"
	StartInProgress       StartOutcome = "in_progress"
)

type ProcessingService struct {
	videos      VideoRepository
	transcripts TranscriptRepository
	sessions    SessionRepository
	embedder    Embedder // nil completes processing without embeddings
	pool        *workerpool.Pool
}

func NewProcessingService(
	videos VideoRepository,
	transcripts TranscriptRepository,
	sessions SessionRepository,
	embedder Embedder,
	pool *workerpool.Pool,
) *ProcessingService {
	return &ProcessingService{
		videos:      videos,
		transcripts: transcripts,
		sessions:    sessions,
		embedder:    embedder,
		pool:        pool,
	}
}

// Status returns the processing status of videoURL; unknown videos are not_started.
func (s *ProcessingService) Status(ctx context.Context, videoURL string) (*models.VideoProcessingStatus, error) {
	status, err := s.videos.GetStatus(ctx, videoURL)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.VideoProcessingStatus{VideoURL: videoURL, Status: models.ProcessingNotStarted}, nil
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Start queues processing for videoURL unless it is done or already running.
func (s *ProcessingService) Start(ctx context.Context, videoURL, sessionID string) (StartOutcome, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return "", fmt.Errorf("video_url is required")
	}

	current, err := s.Status(ctx, videoURL)
	if err != nil {
		return "", err
	}
	switch current.Status {
	case models.ProcessingCompleted:
		return StartAlreadyProcessed, nil
	case models.ProcessingPending, models.ProcessingRunning:
		return StartInProgress, nil
	}

	if err := s.videos.UpsertStatus(ctx, &models.VideoProcessingStatus{
		VideoURL:  videoURL,
		SessionID: sessionID,
		Status:    models.ProcessingPending,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}

	err = s.pool.Submit(func(ctx context.Context) {
		s.process(ctx, videoURL)
	})
	if err != nil {
		s.fail(context.Background(), videoURL, err)
		return "", fmt.Errorf("queue processing: %w", err)
	}

	slog.Info("video processing queued", "video_url", videoURL, "session_id", sessionID)
	return StartQueued, nil
}

// IngestTranscript replaces the transcript and frame descriptions of a video.
func (s *ProcessingService) IngestTranscript(ctx context.Context, videoURL string, segments []models.SegmentInput) (int, error) {
	if strings.TrimSpace(videoURL) == "" {
		return 0, fmt.Errorf("%w: video_url is required", ErrInvalidTranscript)
	}
	for i, seg := range segments {
		if seg.Start < 0 || seg.End < seg.Start {
			return 0, fmt.Errorf("%w: segment %d has bounds [%v, %v]", ErrInvalidTranscript, i, seg.Start, seg.End)
		}
		if strings.TrimSpace(seg.Text) == "" {
			return 0, fmt.Errorf("%w: segment %d has no text", ErrInvalidTranscript, i)
		}
		switch seg.Kind {
		case "", models.SegmentTranscript, models.SegmentFrame:
		default:
			return 0, fmt.Errorf("%w: segment %d has unknown kind %q", ErrInvalidTranscript, i, seg.Kind)
		}
	}

	return s.transcripts.ReplaceSegments(ctx, videoURL, segments)
}

// process runs on a pool worker.
func (s *ProcessingService) process(ctx context.Context, videoURL string) {
	ctx, span := middleware.StartSpan(ctx, "Processing.process", attribute.String("video.url", videoURL))
	defer span.End()

	if err := s.videos.UpdateProgress(ctx, videoURL, models.ProcessingRunning, 0, ""); err != nil {
		s.fail(ctx, videoURL, err)
		return
	}

	if s.embedder != nil {
		if err := s.embed(ctx, videoURL); err != nil {
			middleware.AddSpanError(ctx, err)
			s.fail(ctx, videoURL, err)
			return
		}
	}

	if err := s.videos.UpdateProgress(ctx, videoURL, models.ProcessingCompleted, 100, ""); err != nil {
		s.fail(ctx, videoURL, err)
		return
	}
	if err := s.sessions.MarkVideoProcessed(ctx, videoURL); err != nil {
		slog.Error("failed to mark sessions processed", "video_url", videoURL, "error", err)
	}

	slog.Info("video processing completed", "video_url", videoURL)
}

func (s *ProcessingService) embed(ctx context.Context, videoURL string) error {
	pending, err := s.transcripts.Unembedded(ctx, videoURL)
	if err != nil {
		return err
	}
	total := len(pending)

	for done := 0; done < total; done += embedBatchSize {
		end := min(done+embedBatchSize, total)
		batch := pending[done:end]

		texts := make([]string, len(batch))
		for i, seg := range batch {
			texts[i] = seg.Text
		}

		vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed segments %d-%d: %w", done, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed segments %d-%d: got %d vectors", done, end, len(vectors))
		}

		for i, seg := range batch {
			if err := s.transcripts.SetEmbedding(ctx, seg.ID, vectors[i]); err != nil {
				return err
			}
		}

		// 100 is reserved for the completed state
		progress := min(end*100/total, 99)
		if err := s.videos.UpdateProgress(ctx, videoURL, models.ProcessingRunning, progress, ""); err != nil {
			return err
		}
	}

	return nil
}

func (s *ProcessingService) fail(ctx context.Context, videoURL string, cause error) {
	slog.Error("video processing failed", "video_url", videoURL, "error", cause)

	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := s.videos.UpdateProgress(ctx, videoURL, models.ProcessingFailed, 0, cause.Error()); err != nil {
		slog.Error("failed to record processing failure", "video_url", videoURL, "error", err)
	}
}
