package rocketchat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	StreamRoomMessages = "stream-room-messages"
	MyMessagesEvent    = "__my_messages__"

	ddpVersion = "1"
)

type DDPOptions struct {
	URL    string
	Logger *slog.Logger
	Dialer *websocket.Dialer
	// MaxRateLimitRetries bounds how often one call is retried after the
	// server's rate limiter rejected it. Zero means unlimited.
	MaxRateLimitRetries int
}

// EventHandler receives stream events. It runs on the read loop and must not
// block for long.
type EventHandler func(Event)

// DDPClient speaks the Meteor DDP protocol used by the Rocket.Chat realtime
// API.
type DDPClient struct {
	url         string
	logger      *slog.Logger
	dialer      *websocket.Dialer
	maxRLRetry  int
	writeMu     sync.Mutex
	conn        *websocket.Conn
	mu          sync.Mutex
	pending     map[string]chan ddpFrame
	subs        map[string]chan ddpFrame
	handlers    map[string]EventHandler
	done        chan struct{}
	closeOnce   sync.Once
	readErr     error
	session     string
	loggedIn    bool
	loginUserID string
}

type ddpError struct {
	Error   json.RawMessage `json:"error"`
	Reason  string          `json:"reason"`
	Message string          `json:"message"`
}

func (e *ddpError) code() string {
	if e == nil || len(e.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Error))
}

type ddpFrame struct {
	Msg        string          `json:"msg"`
	ID         string          `json:"id,omitempty"`
	Session    string          `json:"session,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ddpError       `json:"error,omitempty"`
	Subs       []string        `json:"subs,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

type streamFields struct {
	EventName string            `json:"eventName"`
	Args      []json.RawMessage `json:"args"`
}

func NewDDPClient(opts DDPOptions) *DDPClient {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	return &DDPClient{
		url:        strings.TrimSpace(opts.URL),
		logger:     logger,
		dialer:     dialer,
		maxRLRetry: opts.MaxRateLimitRetries,
		pending:    make(map[string]chan ddpFrame),
		subs:       make(map[string]chan ddpFrame),
		handlers:   make(map[string]EventHandler),
	}
}

// Connect dials the websocket and completes the DDP handshake.
func (c *DDPClient) Connect(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("ddp client is not initialized")
	}
	if c.url == "" {
		return fmt.Errorf("ddp url is required")
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("ddp dial: %w", err)
	}

	connected := make(chan ddpFrame, 1)
	c.mu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	c.closeOnce = sync.Once{}
	c.readErr = nil
	c.loggedIn = false
	c.pending["connect"] = connected
	c.mu.Unlock()

	go c.readLoop(conn)

	if err := c.write(map[string]any{
		"msg":     "connect",
		"version": ddpVersion,
		"support": []string{ddpVersion},
	}); err != nil {
		c.Close()
		return err
	}

	select {
	case frame, ok := <-connected:
		if !ok {
			return c.Err()
		}
		if frame.Msg == "failed" {
			c.Close()
			return fmt.Errorf("ddp connect refused")
		}
		c.mu.Lock()
		c.session = frame.Session
		c.mu.Unlock()
		c.logger.Info("rocketchat_ddp_connected", "session", frame.Session)
		return nil
	case <-c.Done():
		return c.Err()
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// Done is closed when the connection is gone.
func (c *DDPClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// Err returns why the connection ended.
func (c *DDPClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return ErrNotConnected
}

func (c *DDPClient) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()
	if conn == nil || done == nil {
		return
	}
	c.closeOnce.Do(func() {
		_ = conn.Close()
	})
	<-done
}

func (c *DDPClient) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("ddp write: %w", err)
	}
	return nil
}

func (c *DDPClient) readLoop(conn *websocket.Conn) {
	var loopErr error
	defer func() {
		c.mu.Lock()
		if loopErr == nil {
			loopErr = ErrNotConnected
		}
		c.readErr = fmt.Errorf("%w: %v", ErrNotConnected, loopErr)
		c.loggedIn = false
		pending := c.pending
		subs := c.subs
		c.pending = make(map[string]chan ddpFrame)
		c.subs = make(map[string]chan ddpFrame)
		done := c.done
		c.mu.Unlock()
		for _, ch := range pending {
			close(ch)
		}
		for _, ch := range subs {
			close(ch)
		}
		c.closeOnce.Do(func() { _ = conn.Close() })
		close(done)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			loopErr = err
			return
		}
		var frame ddpFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Debug("rocketchat_ddp_frame_invalid", "error", err.Error())
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *DDPClient) handleFrame(frame ddpFrame) {
	switch frame.Msg {
	case "connected", "failed":
		c.resolve("connect", frame)
	case "ping":
		reply := map[string]any{"msg": "pong"}
		if frame.ID != "" {
			reply["id"] = frame.ID
		}
		if err := c.write(reply); err != nil {
			c.logger.Warn("rocketchat_ddp_pong_error", "error", err.Error())
		}
	case "result":
		c.resolve(frame.ID, frame)
	case "ready":
		for _, id := range frame.Subs {
			c.resolveSub(id, frame)
		}
	case "nosub":
		c.resolveSub(frame.ID, frame)
	case "changed":
		if frame.Collection != StreamRoomMessages {
			return
		}
		c.dispatchStream(frame.Fields)
	case "error":
		c.logger.Warn("rocketchat_ddp_error", "reason", frame.Reason)
	}
}

func (c *DDPClient) resolve(id string, frame ddpFrame) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- frame
	}
}

func (c *DDPClient) resolveSub(id string, frame ddpFrame) {
	c.mu.Lock()
	ch, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- frame
	}
}

func (c *DDPClient) dispatchStream(rawFields json.RawMessage) {
	var fields streamFields
	if err := json.Unmarshal(rawFields, &fields); err != nil {
		c.logger.Debug("rocketchat_ddp_stream_invalid", "error", err.Error())
		return
	}
	c.mu.Lock()
	handler := c.handlers[fields.EventName]
	c.mu.Unlock()
	if handler == nil {
		return
	}
	event, err := decodeStreamEvent(fields)
	if err != nil {
		c.logger.Warn("rocketchat_ddp_event_decode_error", "event", fields.EventName, "error", err.Error())
		return
	}
	handler(event)
}

func decodeStreamEvent(fields streamFields) (Event, error) {
	if len(fields.Args) == 0 {
		return Event{}, fmt.Errorf("stream event without args")
	}
	event := Event{Name: fields.EventName}
	if err := json.Unmarshal(fields.Args[0], &event.Message); err != nil {
		return Event{}, fmt.Errorf("decode message: %w", err)
	}
	if len(fields.Args) > 1 {
		var ref RoomRef
		if err := json.Unmarshal(fields.Args[1], &ref); err != nil {
			return Event{}, fmt.Errorf("decode room ref: %w", err)
		}
		event.Room = &ref
	}
	return event, nil
}

// Call invokes a DDP method. Calls rejected by the server's rate limiter are
// retried after the delay the server asks for.
func (c *DDPClient) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	for attempt := 1; ; attempt++ {
		frame, err := c.callOnce(ctx, method, params)
		if err != nil {
			return nil, err
		}
		if frame.Error == nil {
			return frame.Result, nil
		}
		mErr := &MethodError{
			Method:  method,
			Code:    frame.Error.code(),
			Reason:  frame.Error.Reason,
			Message: frame.Error.Message,
		}
		wait, limited := rateLimitDelay(ddpRateLimitRE, mErr.Reason+" "+mErr.Message+" ["+mErr.Code+"]")
		if !limited {
			return nil, mErr
		}
		if c.maxRLRetry > 0 && attempt > c.maxRLRetry {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, mErr)
		}
		c.logger.Warn("rocketchat_ddp_rate_limited", "method", method, "delay", wait.String())
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *DDPClient) callOnce(ctx context.Context, method string, params []any) (ddpFrame, error) {
	id := uuid.NewString()
	ch := make(chan ddpFrame, 1)
	c.mu.Lock()
	if c.conn == nil || c.done == nil {
		c.mu.Unlock()
		return ddpFrame{}, ErrNotConnected
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return ddpFrame{}, c.errLocked()
	default:
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(map[string]any{
		"msg":    "method",
		"method": method,
		"id":     id,
		"params": params,
	}); err != nil {
		c.dropPending(id)
		return ddpFrame{}, err
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return ddpFrame{}, c.Err()
		}
		return frame, nil
	case <-ctx.Done():
		c.dropPending(id)
		return ddpFrame{}, ctx.Err()
	}
}

func (c *DDPClient) errLocked() error {
	if c.readErr != nil {
		return c.readErr
	}
	return ErrNotConnected
}

func (c *DDPClient) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Subscribe registers handler for eventName and subscribes to the stream.
func (c *DDPClient) Subscribe(ctx context.Context, stream, eventName string, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("subscription handler is required")
	}
	id := uuid.NewString()
	ch := make(chan ddpFrame, 1)
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.handlers[eventName] = handler
	c.subs[id] = ch
	c.mu.Unlock()

	if err := c.write(map[string]any{
		"msg":    "sub",
		"id":     id,
		"name":   stream,
		"params": []any{eventName, false},
	}); err != nil {
		return err
	}
	select {
	case frame, ok := <-ch:
		if !ok {
			return c.Err()
		}
		if frame.Msg == "nosub" {
			reason := "subscription refused"
			if frame.Error != nil {
				reason = frame.Error.Reason
			}
			return fmt.Errorf("subscribe %s/%s: %s", stream, eventName, reason)
		}
		c.logger.Info("rocketchat_ddp_subscribed", "stream", stream, "event", eventName)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type LoginResult struct {
	UserID       string `json:"id"`
	Token        string `json:"token"`
	TokenExpires Time   `json:"tokenExpires"`
	Type         string `json:"type"`
}

func (c *DDPClient) Login(ctx context.Context, username, password string) (LoginResult, error) {
	digest := sha256.Sum256([]byte(password))
	raw, err := c.Call(ctx, "login", map[string]any{
		"user": map[string]string{"username": username},
		"password": map[string]string{
			"digest":    hex.EncodeToString(digest[:]),
			"algorithm": "sha-256",
		},
	})
	if err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return LoginResult{}, fmt.Errorf("decode login result: %w", err)
	}
	c.mu.Lock()
	c.loggedIn = true
	c.loginUserID = out.UserID
	c.mu.Unlock()
	return out, nil
}

func (c *DDPClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	loggedIn := c.loggedIn
	c.mu.Unlock()
	if !loggedIn {
		return nil
	}
	if _, err := c.Call(ctx, "logout"); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
	return nil
}

func (c *DDPClient) SendMessage(ctx context.Context, roomID, text string) (Message, error) {
	raw, err := c.Call(ctx, "sendMessage", map[string]string{"rid": roomID, "msg": text})
	if err != nil {
		return Message{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return Message{}, fmt.Errorf("rocketchat sendMessage returned no message")
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode sent message: %w", err)
	}
	return msg, nil
}

func (c *DDPClient) UpdateMessage(ctx context.Context, update MessageUpdate) error {
	if strings.TrimSpace(update.ID) == "" {
		return fmt.Errorf("message id is required")
	}
	_, err := c.Call(ctx, "updateMessage", update)
	return err
}

func (c *DDPClient) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.Call(ctx, "deleteMessage", map[string]string{"_id": messageID})
	return err
}

func (c *DDPClient) SetReaction(ctx context.Context, emoji, messageID string, on bool) error {
	_, err := c.Call(ctx, "setReaction", emoji, messageID, on)
	return err
}

func (c *DDPClient) CreateDirectMessage(ctx context.Context, username string) (string, error) {
	raw, err := c.Call(ctx, "createDirectMessage", username)
	if err != nil {
		return "", err
	}
	var out struct {
		RoomID string `json:"rid"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode direct message room: %w", err)
	}
	if out.RoomID == "" {
		return "", fmt.Errorf("rocketchat createDirectMessage returned empty rid")
	}
	return out.RoomID, nil
}

// LoadHistory returns up to count messages of roomID, newest first.
func (c *DDPClient) LoadHistory(ctx context.Context, roomID string, count int) ([]Message, error) {
	raw, err := c.Call(ctx, "loadHistory", roomID, nil, count, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out.Messages, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
