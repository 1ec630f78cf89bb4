package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSwitchRoomClearsMessages(t *testing.T) {
	s := NewState("global", 0)
	s.Append(Message{Sender: "amy", Text: "hi"})
	s.Append(Message{System: true, Text: "ben joined the room"})
	require.Len(t, s.Snapshot().Messages, 2)

	s.SwitchRoom("private_amy_ben")
	snap := s.Snapshot()
	assert.Equal(t, "private_amy_ben", snap.CurrentRoom)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, "global", s.DefaultRoom())
}

func TestStateSetOnlineReplaces(t *testing.T) {
	s := NewState("global", 0)
	s.SetOnline([]string{"amy", "ben"})
	s.SetOnline([]string{"cat"})
	assert.Equal(t, []string{"cat"}, s.Snapshot().Online)

	users := []string{"dan"}
	s.SetOnline(users)
	users[0] = "mutated"
	assert.Equal(t, []string{"dan"}, s.Snapshot().Online)
}

func TestStateTypingExpiresAfterLastEvent(t *testing.T) {
	ttl := 150 * time.Millisecond
	s := NewState("global", ttl)

	s.MarkTyping("amy")
	s.MarkTyping("amy")
	s.MarkTyping("ben")
	assert.Equal(t, []string{"amy", "ben"}, s.Snapshot().Typing)

	time.Sleep(ttl / 2)
	s.MarkTyping("amy")

	require.Eventually(t, func() bool {
		typing := s.Snapshot().Typing
		return len(typing) == 1 && typing[0] == "amy"
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Typing) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMessageDisplay(t *testing.T) {
	plain := Message{Text: "hello", Toxicity: 0.125}
	assert.Equal(t, "hello", plain.Display())
	assert.Equal(t, "Toxicity: 12.5%", plain.ToxicityLabel())

	censored := Message{Text: "you are stupid", ModeratedText: "[hidden]", Censored: true}
	assert.Equal(t, "[hidden]", censored.Display())

	system := Message{System: true, Text: "amy joined the room"}
	assert.Equal(t, "amy joined the room", system.Display())
}

func TestMeter(t *testing.T) {
	assert.Equal(t, BandGreen, BandFor(0))
	assert.Equal(t, BandGreen, BandFor(0.29))
	assert.Equal(t, BandYellow, BandFor(0.3))
	assert.Equal(t, BandYellow, BandFor(0.69))
	assert.Equal(t, BandRed, BandFor(0.7))

	assert.InDelta(t, 42.0, MeterPercent(0.42), 1e-9)
	assert.Equal(t, 100.0, MeterPercent(1.7))
	assert.Equal(t, 0.0, MeterPercent(-0.1))
}
