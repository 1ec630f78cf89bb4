package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zhouzirui/safechat/backend/internal/model/chat"
)

var (
	ErrRoomNameRequired = errors.New("room name is required")
	ErrRoomNameTooLong  = errors.New("room name must be at most 64 characters")
	ErrEmptyMessage     = errors.New("message content is required")
	ErrRoomNotFound     = errors.New("room not found")
)

const (
	maxRoomNameLen      = 64
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Service encapsulates room membership and message persistence.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService wraps a migrated database.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateRoom provisions a persistent room and makes the creator its first member.
func (s *Service) CreateRoom(ctx context.Context, name string, creatorID uint) (chat.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Room{}, ErrRoomNameRequired
	}
	if len([]rune(name)) > maxRoomNameLen {
		return chat.Room{}, ErrRoomNameTooLong
	}

	room := chat.Room{Name: name, CreatedBy: creatorID, CreatedAt: s.now()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&chat.RoomMember{RoomID: room.ID, UserID: creatorID}).Error
	})
	if err != nil {
		return chat.Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// AddMember joins userID to a persistent room; joining twice is a no-op.
func (s *Service) AddMember(ctx context.Context, roomID, userID uint) error {
	var room chat.Room
	err := s.db.WithContext(ctx).First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("find room: %w", err)
	}

	member := chat.RoomMember{RoomID: roomID, UserID: userID}
	if err := s.db.WithContext(ctx).Where(member).FirstOrCreate(&member).Error; err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// IsMember reports whether userID belongs to the persistent room.
func (s *Service) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&chat.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

// CanAccess decides whether a user may join or read a realtime room.
// Persistent rooms need membership, private rooms need to name the user,
// any other room name is public.
func (s *Service) CanAccess(ctx context.Context, room string, userID uint, email string) (bool, error) {
	if IsPrivateRoom(room) {
		return InPrivateRoom(room, email), nil
	}
	if id, ok := ParseRoomKey(room); ok {
		return s.IsMember(ctx, id, userID)
	}
	return true, nil
}

// ListUserRooms returns the persistent rooms userID belongs to, oldest first.
func (s *Service) ListUserRooms(ctx context.Context, userID uint) ([]chat.Room, error) {
	var rooms []chat.Room
	err := s.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.id").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// SaveMessage stores a moderated message and returns it with its id and timestamp.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if strings.TrimSpace(message.Content) == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if message.ChatID == 0 {
		message.ChatID = 1
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}

	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return chat.Message{}, fmt.Errorf("save message: %w", err)
	}
	return message, nil
}

// History returns the latest messages of room in chronological order.
func (s *Service) History(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var messages []chat.Message
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}
