package rocketchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeDDPServer answers the subset of DDP the client uses. Method results
// come from the methods map; every received method frame is recorded.
type fakeDDPServer struct {
	t        *testing.T
	mu       sync.Mutex
	methods  map[string]func(params []json.RawMessage, attempt int) map[string]any
	attempts map[string]int
	calls    []string
	conn     *websocket.Conn
	ready    chan struct{}
}

func newFakeDDPServer(t *testing.T) (*fakeDDPServer, *httptest.Server) {
	t.Helper()
	f := &fakeDDPServer{
		t:        t,
		methods:  map[string]func([]json.RawMessage, int) map[string]any{},
		attempts: map[string]int{},
		ready:    make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		close(f.ready)
		f.serve(conn)
	}))
	return f, srv
}

func (f *fakeDDPServer) send(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.conn.WriteJSON(v)
}

func (f *fakeDDPServer) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var frame struct {
			Msg    string            `json:"msg"`
			ID     string            `json:"id"`
			Method string            `json:"method"`
			Name   string            `json:"name"`
			Params []json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Msg {
		case "connect":
			f.send(map[string]any{"msg": "connected", "session": "s1"})
		case "sub":
			f.send(map[string]any{"msg": "ready", "subs": []string{frame.ID}})
		case "method":
			f.mu.Lock()
			f.calls = append(f.calls, frame.Method)
			f.attempts[frame.Method]++
			attempt := f.attempts[frame.Method]
			fn := f.methods[frame.Method]
			f.mu.Unlock()
			reply := map[string]any{"msg": "result", "id": frame.ID}
			if fn != nil {
				for k, v := range fn(frame.Params, attempt) {
					reply[k] = v
				}
			}
			f.send(reply)
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
}

func TestDDPLoginAndSend(t *testing.T) {
	f, srv := newFakeDDPServer(t)
	defer srv.Close()

	f.methods["login"] = func(params []json.RawMessage, _ int) map[string]any {
		var p struct {
			Password struct {
				Digest    string `json:"digest"`
				Algorithm string `json:"algorithm"`
			} `json:"password"`
		}
		_ = json.Unmarshal(params[0], &p)
		// sha256("secret")
		if p.Password.Digest != "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b" || p.Password.Algorithm != "sha-256" {
			return map[string]any{"error": map[string]any{"error": 403, "reason": "User not found"}}
		}
		return map[string]any{"result": map[string]any{"id": "bot-id", "token": "t"}}
	}
	f.methods["sendMessage"] = func(params []json.RawMessage, _ int) map[string]any {
		var p map[string]string
		_ = json.Unmarshal(params[0], &p)
		return map[string]any{"result": map[string]any{
			"_id": "m1", "rid": p["rid"], "msg": p["msg"],
			"ts": map[string]any{"$date": 1714557600000},
			"u":  map[string]any{"_id": "bot-id", "username": "fsbot"},
		}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewDDPClient(DDPOptions{URL: wsURL(srv)})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	res, err := c.Login(ctx, "fsbot", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.UserID != "bot-id" {
		t.Fatalf("UserID = %q, want bot-id", res.UserID)
	}
	msg, err := c.SendMessage(ctx, "room1", "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.ID != "m1" || msg.RoomID != "room1" || msg.Text != "hello" || msg.CreatedBy.Username != "fsbot" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestDDPMethodError(t *testing.T) {
	f, srv := newFakeDDPServer(t)
	defer srv.Close()

	f.methods["deleteMessage"] = func([]json.RawMessage, int) map[string]any {
		return map[string]any{"error": map[string]any{"error": "error-action-not-allowed", "reason": "Not allowed"}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewDDPClient(DDPOptions{URL: wsURL(srv)})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	err := c.DeleteMessage(ctx, "m1")
	mErr, ok := err.(*MethodError)
	if !ok {
		t.Fatalf("DeleteMessage() error = %v, want *MethodError", err)
	}
	if mErr.Code != "error-action-not-allowed" || mErr.Reason != "Not allowed" {
		t.Fatalf("mErr = %+v", mErr)
	}
}

func TestDDPRetriesRateLimitedCall(t *testing.T) {
	f, srv := newFakeDDPServer(t)
	defer srv.Close()

	f.methods["setReaction"] = func(_ []json.RawMessage, attempt int) map[string]any {
		if attempt == 1 {
			return map[string]any{"error": map[string]any{
				"error":  "too-many-requests",
				"reason": "Error, too many requests. Please slow down. You must wait 0 seconds before trying again.",
			}}
		}
		return map[string]any{"result": nil}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewDDPClient(DDPOptions{URL: wsURL(srv)})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.SetReaction(ctx, ":x1:", "m1", true); err != nil {
		t.Fatalf("SetReaction() error = %v", err)
	}
	f.mu.Lock()
	got := f.attempts["setReaction"]
	f.mu.Unlock()
	if got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestDDPSubscriptionDeliversEvents(t *testing.T) {
	f, srv := newFakeDDPServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewDDPClient(DDPOptions{URL: wsURL(srv)})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	events := make(chan Event, 1)
	if err := c.Subscribe(ctx, StreamRoomMessages, MyMessagesEvent, func(e Event) { events <- e }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	f.send(map[string]any{
		"msg":        "changed",
		"collection": StreamRoomMessages,
		"id":         "id",
		"fields": map[string]any{
			"eventName": MyMessagesEvent,
			"args": []any{
				map[string]any{"_id": "m9", "rid": "r1", "msg": "ping", "u": map[string]any{"_id": "u1", "username": "alice"}},
				map[string]any{"roomType": "c", "roomName": "general", "roomParticipant": true},
			},
		},
	})

	select {
	case e := <-events:
		if e.Message.ID != "m9" || e.Room == nil || e.Room.Name != "general" || e.Room.Type != RoomTypePublic {
			t.Fatalf("event = %+v", e)
		}
	case <-ctx.Done():
		t.Fatalf("no event delivered")
	}
}

func TestDDPDoneAfterServerCloses(t *testing.T) {
	f, srv := newFakeDDPServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewDDPClient(DDPOptions{URL: wsURL(srv)})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-f.ready
	f.mu.Lock()
	_ = f.conn.Close()
	f.mu.Unlock()

	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatalf("Done() not closed after server hang-up")
	}
	if _, err := c.Call(ctx, "sendMessage"); err == nil {
		t.Fatalf("Call() after disconnect expected error")
	}
}

func TestDDPConnectFailsWhenServerHangsUp(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var frame map[string]any
		_ = conn.ReadJSON(&frame)
		_ = conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewDDPClient(DDPOptions{URL: wsURL(srv)})
	err := c.Connect(ctx)
	if err == nil {
		t.Fatalf("Connect() error = nil, want a connection error")
	}
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Connect() error = %v, want ErrNotConnected", err)
	}
}
