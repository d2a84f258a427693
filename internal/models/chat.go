package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role values carried by identity tokens and sender snapshots.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
)

// ChatRoom is the conversation scoped to exactly one order line item.
// Rooms are created in bulk when an order's payment is confirmed and are
// never hard-deleted; closing a room is an IsActive flip.
type ChatRoom struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderItemID uint      `gorm:"uniqueIndex;not null" json:"order_item_id"`
	CustomerID  uint      `gorm:"index;not null" json:"customer_id"`
	VendorID    uint      `gorm:"index;not null" json:"vendor_id"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatMessage is a single persisted chat message. Content always holds the
// filtered text; the raw input is never stored when redaction occurred.
type ChatMessage struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ChatRoomID        uint      `gorm:"index;not null" json:"chat_room_id"`
	SenderID          uint      `gorm:"index;not null" json:"sender_id"`
	Content           string    `gorm:"type:text" json:"content"`
	HasBlockedContent bool      `gorm:"not null;default:false" json:"has_blocked_content"`
	IsRead            bool      `gorm:"not null;default:false" json:"is_read"`
	SenderFirstName   string    `gorm:"size:64" json:"sender_first_name"`
	SenderLastName    string    `gorm:"size:64" json:"sender_last_name"`
	SenderRole        string    `gorm:"size:32" json:"sender_role"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CustomerProfile links a room's customer side to the owning user account.
type CustomerProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	FirstName string    `gorm:"size:64" json:"first_name"`
	LastName  string    `gorm:"size:64" json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VendorProfile links a room's vendor side to the owning user account.
type VendorProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	StoreName string    `gorm:"size:128" json:"store_name"`
	FirstName string    `gorm:"size:64" json:"first_name"`
	LastName  string    `gorm:"size:64" json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notification is the offline-notification sink written when a message
// recipient has no live connection joined to the room.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"index;not null" json:"user_id"`
	Type      string            `gorm:"size:64" json:"type"`
	Title     string            `gorm:"size:255" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Link      string            `gorm:"size:255" json:"link"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
