package rocketchat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type RoomType string

const (
	RoomTypePublic  RoomType = "c"
	RoomTypePrivate RoomType = "p"
	RoomTypeDirect  RoomType = "d"
	RoomTypeLive    RoomType = "l"
)

// Time decodes both the DDP date form {"$date": millis} and ISO-8601 strings
// used by the REST API.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("parse rocketchat time %q: %w", raw, err)
		}
		t.Time = parsed
		return nil
	}
	var wrapped struct {
		Date *int64 `json:"$date"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("parse rocketchat time: %w", err)
	}
	if wrapped.Date == nil {
		return fmt.Errorf("parse rocketchat time: missing $date")
	}
	t.Time = time.UnixMilli(*wrapped.Date)
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]int64{"$date": t.UnixMilli()})
}

type UserRef struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (u UserRef) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Username
}

type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Status   string `json:"status,omitempty"`
	Type     string `json:"type,omitempty"`
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, Name: u.Name}
}

type ChannelRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Reaction lists the usernames that attached one emoji to a message.
type Reaction struct {
	Usernames []string `json:"usernames"`
}

type Reactions map[string]Reaction

// Users returns the usernames for emoji, or nil if nobody reacted with it.
func (r Reactions) Users(emoji string) []string {
	if r == nil {
		return nil
	}
	return r[emoji].Usernames
}

type Message struct {
	ID          string       `json:"_id"`
	RoomID      string       `json:"rid"`
	Text        string       `json:"msg"`
	Type        string       `json:"t,omitempty"`
	CreatedAt   Time         `json:"ts"`
	UpdatedAt   Time         `json:"_updatedAt"`
	CreatedBy   UserRef      `json:"u"`
	EditedAt    *Time        `json:"editedAt,omitempty"`
	EditedBy    *UserRef     `json:"editedBy,omitempty"`
	Channels    []ChannelRef `json:"channels,omitempty"`
	Mentions    []UserRef    `json:"mentions,omitempty"`
	Reactions   Reactions    `json:"reactions,omitempty"`
	Attachments []any        `json:"attachments,omitempty"`
}

// EditedBySomeoneElse reports whether the message carries an edit made by a
// user other than username.
func (m Message) EditedBySomeoneElse(username string) bool {
	if m.EditedBy == nil {
		return false
	}
	return m.EditedBy.Username != "" && m.EditedBy.Username != username
}

// MessageUpdate is the partial message passed to updateMessage. Unset fields
// are left untouched by the server.
type MessageUpdate struct {
	ID        string    `json:"_id"`
	RoomID    string    `json:"rid,omitempty"`
	Text      *string   `json:"msg,omitempty"`
	Reactions Reactions `json:"reactions,omitempty"`
}

type Room struct {
	ID        string   `json:"_id"`
	Type      RoomType `json:"t"`
	Name      string   `json:"name,omitempty"`
	FullName  string   `json:"fname,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	Owner     *UserRef `json:"u,omitempty"`
	Usernames []string `json:"usernames,omitempty"`
	UpdatedAt Time     `json:"_updatedAt"`
}

// Ref builds the subscription-style reference for the room.
func (r Room) Ref(participant bool) RoomRef {
	return RoomRef{Type: r.Type, Name: r.Name, Participant: participant}
}

// RoomRef is the room description that accompanies every message delivered
// through the __my_messages__ stream.
type RoomRef struct {
	Type        RoomType `json:"roomType"`
	Name        string   `json:"roomName,omitempty"`
	Participant bool     `json:"roomParticipant"`
}

// Event is one message notification from a room stream.
type Event struct {
	Name    string
	Message Message
	Room    *RoomRef
}

func Text(s string) *string {
	return &s
}
