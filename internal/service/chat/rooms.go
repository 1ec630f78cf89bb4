package chat

import (
	"fmt"
	"strconv"
	"strings"
)

const privatePrefix = "private_"

// 房间名用 "_" 分隔两位用户，邮箱中的 "%" 和 "_" 需要转义。
var (
	roomPartEscaper   = strings.NewReplacer("%", "%25", "_", "%5F")
	roomPartUnescaper = strings.NewReplacer("%25", "%", "%5F", "_")
)

// PrivateRoomName 为两位用户生成与顺序无关的私聊房间名。
func PrivateRoomName(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		a, b = b, a
	}
	return privatePrefix + roomPartEscaper.Replace(a) + "_" + roomPartEscaper.Replace(b)
}

// IsPrivateRoom 判断房间名是否为私聊格式。
func IsPrivateRoom(room string) bool {
	return strings.HasPrefix(room, privatePrefix)
}

// PrivateRoomMembers 是 PrivateRoomName 的逆操作，非规范的名称返回 false。
func PrivateRoomMembers(room string) (string, string, bool) {
	rest, ok := strings.CutPrefix(room, privatePrefix)
	if !ok {
		return "", "", false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	a, b := roomPartUnescaper.Replace(parts[0]), roomPartUnescaper.Replace(parts[1])
	if PrivateRoomName(a, b) != room {
		return "", "", false
	}
	return a, b, true
}

// RoomKey 是持久化房间在实时通道中的名称。
func RoomKey(id uint) string {
	return fmt.Sprintf("room_%d", id)
}

// ParseRoomKey 是 RoomKey 的逆操作。
func ParseRoomKey(room string) (uint, bool) {
	raw, ok := strings.CutPrefix(room, "room_")
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// InPrivateRoom 判断 email 是否为私聊房间的一方。
func InPrivateRoom(room, email string) bool {
	if email == "" {
		return false
	}
	a, b, ok := PrivateRoomMembers(room)
	return ok && (email == a || email == b)
}
