package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fachschaft/fsbot/internal/rocketchat"
)

const defaultHistoryCount = 100

// Transport is the part of the chat client the manager needs.
type Transport interface {
	SendMessage(ctx context.Context, roomID, text string) (rocketchat.Message, error)
	UpdateMessage(ctx context.Context, update rocketchat.MessageUpdate) error
	DeleteMessage(ctx context.Context, messageID string) error
	RoomByID(ctx context.Context, roomID string) (rocketchat.Room, error)
	DisplayName(ctx context.Context, username string) string
	LoadHistory(ctx context.Context, roomID string, count int) ([]rocketchat.Message, error)
}

// RoomWatcher is told which rooms carry live polls, so that their message
// events reach HandleRoomMessage.
type RoomWatcher interface {
	Add(name string)
	Remove(name string)
}

type Options struct {
	BotName string
	// StatusRoom stores one JSON snapshot message per poll.
	StatusRoom   rocketchat.Room
	HistoryCount int
	Watcher      RoomWatcher
	Logger       *slog.Logger
	Now          func() time.Time
}

// Manager owns every poll of the bot. All methods are safe for concurrent
// use; operations on polls are serialized.
type Manager struct {
	mu         sync.Mutex
	transport  Transport
	cache      *Cache
	botName    string
	statusRoom rocketchat.Room
	history    int
	watcher    RoomWatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(transport Transport, opts Options) (*Manager, error) {
	if transport == nil {
		return nil, fmt.Errorf("poll transport is required")
	}
	if strings.TrimSpace(opts.BotName) == "" {
		return nil, fmt.Errorf("bot name is required")
	}
	if strings.TrimSpace(opts.StatusRoom.ID) == "" {
		return nil, fmt.Errorf("status room is required")
	}
	m := &Manager{
		transport:  transport,
		cache:      NewCache(),
		botName:    strings.TrimSpace(opts.BotName),
		statusRoom: opts.StatusRoom,
		history:    opts.HistoryCount,
		watcher:    opts.Watcher,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if m.history <= 0 {
		m.history = defaultHistoryCount
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Open creates a manager and restores the polls found in the status room.
func Open(ctx context.Context, transport Transport, opts Options) (*Manager, error) {
	m, err := NewManager(transport, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Recover(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) StatusRoom() rocketchat.Room { return m.statusRoom }

func (m *Manager) BotName() string { return m.botName }

// Recover replays the status room history oldest first and starts watching
// every room a restored poll lives in.
func (m *Manager) Recover(ctx context.Context) error {
	msgs, err := m.transport.LoadHistory(ctx, m.statusRoom.ID, m.history)
	if err != nil {
		return fmt.Errorf("load poll status history: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make(map[string]struct{})
	restored := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		p, err := Unmarshal(msg.Text)
		if err != nil {
			m.logger.Debug("poll_status_skipped", "message_id", msg.ID, "error", err.Error())
			continue
		}
		p.StatusMsgID = msg.ID
		m.cache.Add(p)
		rooms[p.RoomID] = struct{}{}
		restored++
	}
	for roomID := range rooms {
		m.watchLocked(ctx, roomID)
	}
	m.logger.Info("poll_recovered", "polls", restored, "rooms", len(rooms))
	return nil
}

// Polls returns the live polls ordered by creation time.
func (m *Manager) Polls() []*Poll {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Polls()
}

// LastActive returns the poll most recently created in or pushed to roomID.
func (m *Manager) LastActive(roomID string) (*Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.cache.Get(Keys{RoomID: roomID})
	if p == nil {
		return nil, ErrPollNotFound
	}
	return p, nil
}

// Create starts a poll in roomID. commandMsgID is the message that asked for
// it; deleting that message cancels the poll.
func (m *Manager) Create(ctx context.Context, roomID, commandMsgID, title string, options []string) (*Poll, error) {
	if len(options) > MaxOptions {
		return nil, ErrTooManyOpts
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.cache.NewID()
	if err != nil {
		return nil, err
	}
	p := New(id, roomID, commandMsgID, m.botName, title, options, m.now())
	// Watch first: the events of the new message must reach
	// HandleRoomMessage, which waits for m.mu.
	m.watchLocked(ctx, roomID)
	if err := m.publishLocked(ctx, p, roomID); err != nil {
		m.unwatchLocked(ctx, roomID)
		return p, err
	}
	m.logger.Info("poll_created", "poll_id", p.ID, "room_id", roomID, "options", len(p.Options))
	return p, nil
}

// Push moves p into roomID as a new message. The old message is deleted on a
// best effort basis and votes are kept.
func (m *Manager) Push(ctx context.Context, p *Poll, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cache.Contains(p) {
		return ErrPollNotFound
	}
	m.watchLocked(ctx, roomID)
	if err := m.publishLocked(ctx, p, roomID); err != nil {
		m.unwatchLocked(ctx, roomID)
		return err
	}
	m.logger.Info("poll_pushed", "poll_id", p.ID, "room_id", roomID)
	return nil
}

// AddOptions appends texts as new options of p, registers voter for each
// added option and sorts the options by text. It reports how many options
// were added; nothing is sent if none was.
func (m *Manager) AddOptions(ctx context.Context, p *Poll, texts []string, voter string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cache.Contains(p) {
		return 0, ErrPollNotFound
	}
	added := 0
	for _, text := range texts {
		o := p.AddOption(text)
		if o == nil {
			continue
		}
		o.addVoter(voter)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	p.SortOptions()
	return added, m.refreshLocked(ctx, p)
}

// HandleRoomMessage reacts to a message event in a watched room: deleting
// the command message cancels its poll, changes on a poll message sync the
// votes.
func (m *Manager) HandleRoomMessage(ctx context.Context, msg rocketchat.Message) error {
	if msg.ID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.cache.Get(Keys{OriginalMsgID: msg.ID}); p != nil && strings.TrimSpace(msg.Text) == "" {
		m.cancelLocked(ctx, p)
		return nil
	}
	p := m.cache.Get(Keys{PollMsgID: msg.ID})
	if p == nil {
		return nil
	}
	// A live poll message always carries the bot's own reactions. An event
	// without any is the echo of the send, before the reactions were set.
	if len(msg.Reactions) == 0 {
		return nil
	}
	if !p.UpdateReactions(msg.Reactions) {
		return nil
	}
	return m.refreshLocked(ctx, p)
}

// HandleStatusMessage reacts to edits of the bot's own status messages made
// by somebody else. A valid snapshot replaces the poll, an empty one deletes
// it and anything else is reverted.
func (m *Manager) HandleStatusMessage(ctx context.Context, msg rocketchat.Message) error {
	if msg.CreatedBy.Username != m.botName || !msg.EditedBySomeoneElse(m.botName) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(msg.Text) == "" {
		p, err := m.cache.Remove(Keys{StatusMsgID: msg.ID})
		if err != nil {
			return nil
		}
		m.unwatchLocked(ctx, p.RoomID)
		m.deleteQuietly(ctx, p.PollMsgID)
		m.logger.Info("poll_deleted_by_status", "poll_id", p.ID)
		return nil
	}

	edited, err := Unmarshal(msg.Text)
	if err != nil {
		p := m.cache.Get(Keys{StatusMsgID: msg.ID})
		if p == nil {
			return nil
		}
		m.logger.Warn("poll_status_invalid", "poll_id", p.ID, "error", err.Error())
		return m.writeStatusLocked(ctx, p)
	}
	edited.StatusMsgID = msg.ID
	old, _ := m.cache.Remove(Keys{StatusMsgID: msg.ID})
	m.cache.Add(edited)
	if old != nil && old.RoomID != edited.RoomID {
		m.unwatchLocked(ctx, old.RoomID)
	}
	m.watchLocked(ctx, edited.RoomID)
	m.logger.Info("poll_replaced_by_status", "poll_id", edited.ID)
	return m.refreshLocked(ctx, edited)
}

// publishLocked sends p as a new message into roomID, seeds its reactions,
// deletes the previous message and writes the status snapshot.
func (m *Manager) publishLocked(ctx context.Context, p *Poll, roomID string) error {
	old := p.Keys()
	reactions := p.Reactions()
	text := p.Render(m.displayName(ctx))

	msg, err := m.transport.SendMessage(ctx, roomID, text)
	if err != nil {
		return &OpError{Op: "send poll message", PollID: p.ID, Err: err}
	}
	p.PollMsgID = msg.ID
	p.RoomID = roomID
	m.cache.Rekey(p, old)
	m.cache.MarkActive(p)

	if err := m.transport.UpdateMessage(ctx, rocketchat.MessageUpdate{
		ID:        msg.ID,
		RoomID:    roomID,
		Reactions: reactions,
	}); err != nil {
		return &OpError{Op: "set poll reactions", PollID: p.ID, Err: err}
	}
	if old.PollMsgID != "" && old.PollMsgID != msg.ID {
		m.deleteQuietly(ctx, old.PollMsgID)
	}
	return m.writeStatusLocked(ctx, p)
}

// refreshLocked re-renders the live message of p and updates its status
// snapshot. Both updates are attempted.
func (m *Manager) refreshLocked(ctx context.Context, p *Poll) error {
	var errs []error
	if p.PollMsgID != "" {
		if err := m.transport.UpdateMessage(ctx, rocketchat.MessageUpdate{
			ID:        p.PollMsgID,
			Text:      rocketchat.Text(p.Render(m.displayName(ctx))),
			Reactions: p.Reactions(),
		}); err != nil {
			errs = append(errs, &OpError{Op: "update poll message", PollID: p.ID, Err: err})
		}
	}
	if err := m.writeStatusLocked(ctx, p); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Manager) writeStatusLocked(ctx context.Context, p *Poll) error {
	body, err := Marshal(p)
	if err != nil {
		return err
	}
	if p.StatusMsgID == "" {
		msg, err := m.transport.SendMessage(ctx, m.statusRoom.ID, body)
		if err != nil {
			return &OpError{Op: "send status message", PollID: p.ID, Err: err}
		}
		old := p.Keys()
		p.StatusMsgID = msg.ID
		m.cache.Rekey(p, old)
		return nil
	}
	if err := m.transport.UpdateMessage(ctx, rocketchat.MessageUpdate{
		ID:   p.StatusMsgID,
		Text: rocketchat.Text(body),
	}); err != nil {
		return &OpError{Op: "update status message", PollID: p.ID, Err: err}
	}
	return nil
}

func (m *Manager) cancelLocked(ctx context.Context, p *Poll) {
	if _, err := m.cache.Remove(Keys{ID: p.ID}); err != nil {
		return
	}
	m.unwatchLocked(ctx, p.RoomID)
	m.deleteQuietly(ctx, p.PollMsgID)
	m.deleteQuietly(ctx, p.StatusMsgID)
	m.logger.Info("poll_cancelled", "poll_id", p.ID, "room_id", p.RoomID)
}

func (m *Manager) deleteQuietly(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := m.transport.DeleteMessage(ctx, messageID); err != nil {
		m.logger.Debug("poll_message_delete_failed", "message_id", messageID, "error", err.Error())
	}
}

func (m *Manager) watchLocked(ctx context.Context, roomID string) {
	if m.watcher == nil || roomID == "" {
		return
	}
	room, err := m.transport.RoomByID(ctx, roomID)
	if err != nil {
		m.logger.Warn("poll_room_lookup_failed", "room_id", roomID, "error", err.Error())
		return
	}
	// Direct rooms have no name and are reached through the direct message
	// filter instead.
	if room.Name != "" {
		m.watcher.Add(room.Name)
	}
}

func (m *Manager) unwatchLocked(ctx context.Context, roomID string) {
	if m.watcher == nil || roomID == "" || m.cache.InRoom(roomID) {
		return
	}
	room, err := m.transport.RoomByID(ctx, roomID)
	if err != nil || room.Name == "" {
		return
	}
	m.watcher.Remove(room.Name)
}

func (m *Manager) displayName(ctx context.Context) func(string) string {
	return func(username string) string {
		return m.transport.DisplayName(ctx, username)
	}
}
