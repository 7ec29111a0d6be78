package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fachschaft/fsbot/internal/rocketchat"
)

// Event is one incoming message together with the room it was posted in.
type Event struct {
	Message rocketchat.Message
	Room    rocketchat.RoomRef
}

// UsageLine documents one command.
type UsageLine struct {
	Command     string
	Description string
}

// Handler consumes events of the rooms it is applicable to.
type Handler interface {
	Applicable(room rocketchat.RoomRef) bool
	Handle(ctx context.Context, event Event) error
	Usage() []UsageLine
}

// Command is one verb understood by a Router.
type Command interface {
	Usage() []UsageLine
	CanHandle(name string) bool
	Handle(ctx context.Context, name, args string, msg rocketchat.Message) error
}

// HandlerFunc adapts a function to a Handler applicable everywhere.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Applicable(rocketchat.RoomRef) bool { return true }

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

func (f HandlerFunc) Usage() []UsageLine { return nil }

// RoomSet is a set of room names safe for concurrent use.
type RoomSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewRoomSet(names ...string) *RoomSet {
	s := &RoomSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s *RoomSet) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s.mu.Lock()
	s.names[name] = struct{}{}
	s.mu.Unlock()
}

func (s *RoomSet) Remove(name string) {
	s.mu.Lock()
	delete(s.names, strings.TrimSpace(name))
	s.mu.Unlock()
}

func (s *RoomSet) Contains(name string) bool {
	if s == nil || name == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

func (s *RoomSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

type whitelist struct {
	Handler
	rooms          *RoomSet
	directMessages bool
}

// Whitelist restricts h to the named rooms. Direct messages have no name
// and pass only when directMessages is set.
func Whitelist(h Handler, rooms *RoomSet, directMessages bool) Handler {
	if rooms == nil {
		rooms = NewRoomSet()
	}
	return &whitelist{Handler: h, rooms: rooms, directMessages: directMessages}
}

func (w *whitelist) Applicable(room rocketchat.RoomRef) bool {
	if room.Type == rocketchat.RoomTypeDirect {
		return w.directMessages && w.Handler.Applicable(room)
	}
	return w.rooms.Contains(room.Name) && w.Handler.Applicable(room)
}

type blacklist struct {
	Handler
	rooms *RoomSet
}

// Blacklist hides h in the named rooms.
func Blacklist(h Handler, rooms *RoomSet) Handler {
	return &blacklist{Handler: h, rooms: rooms}
}

func (b *blacklist) Applicable(room rocketchat.RoomRef) bool {
	if room.Name != "" && b.rooms.Contains(room.Name) {
		return false
	}
	return b.Handler.Applicable(room)
}

// RoomTypeFilter selects the room types a handler is active in.
type RoomTypeFilter struct {
	Public  bool
	Private bool
	Direct  bool
}

type roomTypes struct {
	Handler
	filter RoomTypeFilter
}

// RoomTypes restricts h to the enabled room types.
func RoomTypes(h Handler, filter RoomTypeFilter) (Handler, error) {
	if !filter.Public && !filter.Private && !filter.Direct {
		return nil, fmt.Errorf("at least one room type must be enabled")
	}
	return &roomTypes{Handler: h, filter: filter}, nil
}

func (r *roomTypes) Applicable(room rocketchat.RoomRef) bool {
	switch room.Type {
	case rocketchat.RoomTypePublic:
		if !r.filter.Public {
			return false
		}
	case rocketchat.RoomTypePrivate:
		if !r.filter.Private {
			return false
		}
	case rocketchat.RoomTypeDirect:
		if !r.filter.Direct {
			return false
		}
	default:
		return false
	}
	return r.Handler.Applicable(room)
}

type ignoreOwn struct {
	Handler
	username string
}

// IgnoreOwn drops messages written by username.
func IgnoreOwn(h Handler, username string) Handler {
	return &ignoreOwn{Handler: h, username: username}
}

func (i *ignoreOwn) Handle(ctx context.Context, event Event) error {
	if event.Message.CreatedBy.Username == i.username {
		return nil
	}
	return i.Handler.Handle(ctx, event)
}

type mention struct {
	Handler
	username string
}

// Mention passes only messages addressed to username ("@bot cmd" or
// "bot cmd") and strips the address before handing them on.
func Mention(h Handler, username string) Handler {
	return &mention{Handler: h, username: username}
}

func (m *mention) Handle(ctx context.Context, event Event) error {
	text, ok := StripMention(event.Message.Text, m.username)
	if !ok {
		return nil
	}
	event.Message.Text = text
	return m.Handler.Handle(ctx, event)
}

func (m *mention) Usage() []UsageLine {
	lines := m.Handler.Usage()
	out := make([]UsageLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, UsageLine{Command: "@" + m.username + " " + l.Command, Description: l.Description})
	}
	return out
}

// StripMention removes a leading "@username" or "username" from text.
func StripMention(text, username string) (string, bool) {
	if username == "" {
		return "", false
	}
	text = strings.TrimLeft(text, " \t\r\n")
	switch {
	case strings.HasPrefix(text, "@"+username):
		text = text[len(username)+1:]
	case strings.HasPrefix(text, username):
		text = text[len(username):]
	default:
		return "", false
	}
	return strings.TrimLeft(text, " \t\r\n:,"), true
}
