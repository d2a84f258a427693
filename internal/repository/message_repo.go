package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ordelia/chat-api/internal/models"
)

// MessageRepository persists chat messages for delivery, history and
// moderation review.
type MessageRepository interface {
	Save(ctx context.Context, message *models.ChatMessage) error
	ListByRoom(ctx context.Context, roomID uint, before time.Time, limit int) ([]models.ChatMessage, error)
	LatestByRoom(ctx context.Context, roomID uint) (models.ChatMessage, error)
	// MarkReadForReader flips is_read on every message in the room that was
	// authored by someone other than readerID. Returns the number of rows
	// updated.
	MarkReadForReader(ctx context.Context, roomID, readerID uint) (int64, error)
	ListForModeration(ctx context.Context, roomID uint, blockedOnly bool, limit, offset int) ([]models.ChatMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID uint, before time.Time, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("chat_room_id = ?", roomID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.ChatMessage
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) LatestByRoom(ctx context.Context, roomID uint) (models.ChatMessage, error) {
	var message models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC").
		First(&message).Error
	if err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

func (r *messageRepository) MarkReadForReader(ctx context.Context, roomID, readerID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("chat_room_id = ? AND sender_id <> ? AND is_read = ?", roomID, readerID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (r *messageRepository) ListForModeration(ctx context.Context, roomID uint, blockedOnly bool, limit, offset int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Where("chat_room_id = ?", roomID)
	if blockedOnly {
		query = query.Where("has_blocked_content = ?", true)
	}

	var messages []models.ChatMessage
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	return messages, nil
}
