package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ordelia/chat-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID   uint                   `json:"userId" validate:"required"`
	Type     string                 `json:"type" validate:"required,max=64"`
	Title    string                 `json:"title" validate:"omitempty,max=255"`
	Message  string                 `json:"message" validate:"required,min=1,max=2000"`
	Link     string                 `json:"link" validate:"omitempty,max=255"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"userId"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      string                 `json:"link,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		Link:      model.Link,
		Metadata:  model.Metadata,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// ToJSONMap converts request metadata into the stored representation.
func ToJSONMap(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return nil
	}
	return datatypes.JSONMap(metadata)
}
