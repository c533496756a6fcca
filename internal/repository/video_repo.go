package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchparty/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VideoRepositoryImpl tracks per-URL processing status.
type VideoRepositoryImpl struct {
	db *gorm.DB
}

func NewVideoRepository(db *gorm.DB) *VideoRepositoryImpl {
	return &VideoRepositoryImpl{db: db}
}

// GetStatus returns the status row for videoURL, or ErrNotFound.
func (r *VideoRepositoryImpl) GetStatus(ctx context.Context, videoURL string) (*models.VideoProcessingStatus, error) {
	var status models.VideoProcessingStatus

	err := r.db.WithContext(ctx).
		Where("video_url = ?", videoURL).
		First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("video status %s: %w", videoURL, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video status: %w", err)
	}

	return &status, nil
}

// UpsertStatus writes the full status row keyed by video_url.
func (r *VideoRepositoryImpl) UpsertStatus(ctx context.Context, status *models.VideoProcessingStatus) error {
	if status.StartedAt.IsZero() {
		status.StartedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "video_url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "status", "progress", "error_message", "started_at", "completed_at",
			}),
		}).
		Create(status).Error
	if err != nil {
		return fmt.Errorf("failed to upsert video status: %w", err)
	}
	return nil
}

// UpdateProgress moves an existing row to state with the given progress.
// Terminal states stamp completed_at.
func (r *VideoRepositoryImpl) UpdateProgress(ctx context.Context, videoURL string, state models.ProcessingState, progress int, errMsg string) error {
	updates := map[string]any{
		"status":        state,
		"progress":      progress,
		"error_message": errMsg,
	}
	if state.Terminal() {
		updates["completed_at"] = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&models.VideoProcessingStatus{}).
		Where("video_url = ?", videoURL).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update video status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("video status %s: %w", videoURL, ErrNotFound)
	}
	return nil
}
