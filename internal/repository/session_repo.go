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

// ErrNotFound is returned when a record does not exist (or is inactive).
var ErrNotFound = errors.New("not found")

// SessionRepositoryImpl stores sessions and their participant rows.
// Returns concrete type - consumers declare the interface they need.
type SessionRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db}
}

// CreateSession inserts a new active session. is_master defaults to true.
func (r *SessionRepositoryImpl) CreateSession(ctx context.Context, in *models.SessionCreate) (*models.Session, error) {
	isMaster := true
	if in.IsMaster != nil {
		isMaster = *in.IsMaster
	}

	session := &models.Session{
		Name:      in.Name,
		VideoURL:  in.VideoURL,
		VideoFile: in.VideoFile,
		IsMaster:  isMaster,
		Active:    true,
	}

	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetSession returns an active session by id.
func (r *SessionRepositoryImpl) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session

	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// ListActiveSessions returns active sessions, newest first.
func (r *SessionRepositoryImpl) ListActiveSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session

	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// MarkVideoProcessed flags every session showing videoURL as processed.
func (r *SessionRepositoryImpl) MarkVideoProcessed(ctx context.Context, videoURL string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("video_url = ?", videoURL).
		Update("video_processed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark video processed: %w", err)
	}
	return nil
}

// UpsertParticipant inserts or replaces the membership row for (session_id, user_id).
func (r *SessionRepositoryImpl) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	now := time.Now().UTC()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = now
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "role", "joined_at", "last_seen"}),
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// TouchParticipant refreshes last_seen. Missing rows are ignored.
func (r *SessionRepositoryImpl) TouchParticipant(ctx context.Context, sessionID, userID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Update("last_seen", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to touch participant: %w", err)
	}
	return nil
}

// RemoveParticipant deletes the membership row. Deleting a missing row is not an error.
func (r *SessionRepositoryImpl) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.Participant{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// ListParticipants returns persisted membership rows in join order.
func (r *SessionRepositoryImpl) ListParticipants(ctx context.Context, sessionID string) ([]*models.Participant, error) {
	var participants []*models.Participant

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	return participants, nil
}
