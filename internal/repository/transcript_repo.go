package repository

import (
	"context"
	"fmt"

	"watchparty/internal/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TranscriptRepositoryImpl stores timed transcript lines and frame
// descriptions per video, plus their embeddings once processed.
type TranscriptRepositoryImpl struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepositoryImpl {
	return &TranscriptRepositoryImpl{db: db}
}

// ReplaceSegments swaps the whole segment set of a video in one transaction.
func (r *TranscriptRepositoryImpl) ReplaceSegments(ctx context.Context, videoURL string, in []models.SegmentInput) (int, error) {
	segments := make([]*models.TranscriptSegment, 0, len(in))
	for _, s := range in {
		kind := s.Kind
		if kind == "" {
			kind = models.SegmentTranscript
		}
		segments = append(segments, &models.TranscriptSegment{
			VideoURL:     videoURL,
			Kind:         kind,
			StartSeconds: s.Start,
			EndSeconds:   s.End,
			Text:         s.Text,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_url = ?", videoURL).Delete(&models.TranscriptSegment{}).Error; err != nil {
			return err
		}
		if len(segments) == 0 {
			return nil
		}
		return tx.CreateInBatches(segments, 100).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace segments: %w", err)
	}

	return len(segments), nil
}

// CountSegments returns how many segments fall inside the window.
func (r *TranscriptRepositoryImpl) CountSegments(ctx context.Context, videoURL string, window models.TimeWindow) (int64, error) {
	var n int64
	err := r.windowQuery(ctx, videoURL, window).
		Model(&models.TranscriptSegment{}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return n, nil
}

// SegmentsInWindow returns segments overlapping the window in video order.
// limit <= 0 means no limit.
func (r *TranscriptRepositoryImpl) SegmentsInWindow(ctx context.Context, videoURL string, window models.TimeWindow, limit int) ([]*models.TranscriptSegment, error) {
	var segments []*models.TranscriptSegment

	q := r.windowQuery(ctx, videoURL, window).Order("start_seconds ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&segments).Error; err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	return segments, nil
}

// NearestInWindow ranks embedded segments by cosine distance to query and
// returns the best limit of them, re-sorted into video order.
// Only postgres has the <=> operator; other dialects fall back to SegmentsInWindow.
func (r *TranscriptRepositoryImpl) NearestInWindow(ctx context.Context, videoURL string, window models.TimeWindow, query []float32, limit int) ([]*models.TranscriptSegment, error) {
	if r.db.Dialector.Name() != "postgres" || len(query) == 0 {
		return r.SegmentsInWindow(ctx, videoURL, window, limit)
	}

	vec := pgvector.NewVector(query)
	var ranked []*models.TranscriptSegment

	err := r.windowQuery(ctx, videoURL, window).
		Where("embedding IS NOT NULL").
		Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}}).
		Limit(limit).
		Find(&ranked).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank segments: %w", err)
	}
	if len(ranked) == 0 {
		return r.SegmentsInWindow(ctx, videoURL, window, limit)
	}

	var segments []*models.TranscriptSegment
	err = r.db.WithContext(ctx).
		Where("id IN ?", segmentIDs(ranked)).
		Order("start_seconds ASC").
		Find(&segments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to order ranked segments: %w", err)
	}

	return segments, nil
}

// Unembedded lists the segments of a video that still lack an embedding.
func (r *TranscriptRepositoryImpl) Unembedded(ctx context.Context, videoURL string) ([]*models.TranscriptSegment, error) {
	var segments []*models.TranscriptSegment

	err := r.db.WithContext(ctx).
		Where("video_url = ? AND embedding IS NULL", videoURL).
		Order("start_seconds ASC").
		Find(&segments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unembedded segments: %w", err)
	}

	return segments, nil
}

// SetEmbedding stores the vector for one segment.
func (r *TranscriptRepositoryImpl) SetEmbedding(ctx context.Context, segmentID string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Model(&models.TranscriptSegment{}).
		Where("id = ?", segmentID).
		Update("embedding", &vec).Error
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

func (r *TranscriptRepositoryImpl) windowQuery(ctx context.Context, videoURL string, window models.TimeWindow) *gorm.DB {
	q := r.db.WithContext(ctx).Where("video_url = ?", videoURL)
	if window.Bounded() {
		q = q.Where("start_seconds <= ? AND end_seconds >= ?", window.End, window.Start)
	}
	return q
}

func segmentIDs(segments []*models.TranscriptSegment) []string {
	ids := make([]string, len(segments))
	for i, s := range segments {
		ids[i] = s.ID
	}
	return ids
}
