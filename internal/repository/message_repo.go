package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchparty/internal/models"

	"gorm.io/gorm"
)

// appendAttempts bounds retries when two writers race for the same seq.
const appendAttempts = 3

// MessageRepositoryImpl is the append-only chat history.
type MessageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{db: db}
}

// AppendMessage assigns the next per-session seq and inserts the message.
// The (session_id, seq) unique index rejects a duplicate seq; the append is
// then retried with a fresh seq.
func (r *MessageRepositoryImpl) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var err error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var last int64
			if err := tx.Model(&models.ChatMessage{}).
				Where("session_id = ?", msg.SessionID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&last).Error; err != nil {
				return err
			}
			msg.Seq = last + 1
			return tx.Create(msg).Error
		})
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		msg.ID = ""
	}
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

// ListMessages returns the most recent limit messages in chronological order.
// limit <= 0 returns the whole history.
func (r *MessageRepositoryImpl) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage

	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
