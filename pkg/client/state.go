package client

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL 是输入提示的保留时长。
const DefaultTypingTTL = 2 * time.Second

// Message 是视图里的一行：聊天消息或系统提示。
type Message struct {
	Sender        string
	Text          string
	ModeratedText string
	Toxicity      float64
	Censored      bool
	System        bool
	Room          string
	At            time.Time
}

// Display 返回应展示的文本，被屏蔽的消息展示替换文本。
func (m Message) Display() string {
	if m.Censored && m.ModeratedText != "" {
		return m.ModeratedText
	}
	return m.Text
}

// ToxicityLabel 形如 "Toxicity: 12.5%"。
func (m Message) ToxicityLabel() string {
	return fmt.Sprintf("Toxicity: %.1f%%", m.Toxicity*100)
}

// Snapshot 是 State 的只读副本。
type Snapshot struct {
	CurrentRoom string
	Messages    []Message
	Online      []string
	Typing      []string
	Toxicity    float64
	LastNotice  string
}

// State 是聊天界面的视图模型，可在多个 goroutine 中使用。
type State struct {
	mu          sync.Mutex
	ttl         time.Duration
	defaultRoom string
	currentRoom string
	messages    []Message
	online      []string
	typing      map[string]uint64
	typingSeq   uint64
	toxicity    float64
	lastNotice  string
}

// NewState 创建位于 defaultRoom 的空状态。ttl <= 0 时使用 DefaultTypingTTL。
func NewState(defaultRoom string, ttl time.Duration) *State {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &State{
		ttl:         ttl,
		defaultRoom: defaultRoom,
		currentRoom: defaultRoom,
		typing:      make(map[string]uint64),
	}
}

func (s *State) DefaultRoom() string {
	return s.defaultRoom
}

func (s *State) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRoom
}

// Append 在消息列表末尾追加。
func (s *State) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// SwitchRoom 切换当前房间并清空消息。
func (s *State) SwitchRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoom = room
	s.messages = nil
}

// SetOnline 整体替换在线列表。
func (s *State) SetOnline(users []string) {
	cp := append([]string(nil), users...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = cp
}

// SetToxicity 记录最近一次的毒性得分。
func (s *State) SetToxicity(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toxicity = score
}

// SetNotice 记录最近一次审核提示。
func (s *State) SetNotice(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNotice = notice
}

// MarkTyping 把 user 标记为正在输入，在最后一次标记 ttl 之后移除。
func (s *State) MarkTyping(user string) {
	if user == "" {
		return
	}

	s.mu.Lock()
	s.typingSeq++
	seq := s.typingSeq
	s.typing[user] = seq
	s.mu.Unlock()

	time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.typing[user] == seq {
			delete(s.typing, user)
		}
	})
}

// Snapshot 返回当前状态的副本，Typing 按字母排序。
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	typing := make([]string, 0, len(s.typing))
	for user := range s.typing {
		typing = append(typing, user)
	}
	sort.Strings(typing)

	return Snapshot{
		CurrentRoom: s.currentRoom,
		Messages:    append([]Message(nil), s.messages...),
		Online:      append([]string(nil), s.online...),
		Typing:      typing,
		Toxicity:    s.toxicity,
		LastNotice:  s.lastNotice,
	}
}
