package chat

import "time"

// Room is a persistent named room a user can belong to.
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:191" json:"name"`
	IsPrivate bool      `json:"is_private"`
	CreatedBy uint      `gorm:"index" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMember links users to rooms.
type RoomMember struct {
	ID     uint `gorm:"primaryKey"`
	RoomID uint `gorm:"uniqueIndex:idx_room_user"`
	UserID uint `gorm:"uniqueIndex:idx_room_user"`
}
