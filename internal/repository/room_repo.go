package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ordelia/chat-api/internal/models"
)

// RoomRepository persists chat rooms and resolves room membership queries.
type RoomRepository interface {
	FindByID(ctx context.Context, id uint) (models.ChatRoom, error)
	// CreateIfAbsent inserts a room keyed on its order item, skipping the
	// insert when a room for that item already exists. Returns the stored
	// room either way.
	CreateIfAbsent(ctx context.Context, room *models.ChatRoom) error
	ListByCustomer(ctx context.Context, customerID uint) ([]models.ChatRoom, error)
	ListByVendor(ctx context.Context, vendorID uint) ([]models.ChatRoom, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.ChatRoom, error)
	Touch(ctx context.Context, id uint) error
	SetActive(ctx context.Context, id uint, active bool) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) FindByID(ctx context.Context, id uint) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

func (r *roomRepository) CreateIfAbsent(ctx context.Context, room *models.ChatRoom) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_item_id"}},
			DoNothing: true,
		}).
		Create(room).Error; err != nil {
		return err
	}

	// On conflict the insert is skipped and no ID is populated; load the
	// existing row so callers always see the stored room.
	if room.ID == 0 {
		return r.db.WithContext(ctx).
			Where("order_item_id = ?", room.OrderItemID).
			First(room).Error
	}

	return nil
}

func (r *roomRepository) ListByCustomer(ctx context.Context, customerID uint) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("updated_at DESC").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) ListByVendor(ctx context.Context, vendorID uint) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("updated_at DESC").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) ListAll(ctx context.Context, limit, offset int) ([]models.ChatRoom, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) Touch(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *roomRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}
