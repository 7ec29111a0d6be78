package rocketchat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	rc "github.com/fachschaft/fsbot/internal/rocketchat"
)

type fakeSession struct {
	connectErr error
	done       chan struct{}
	handler    rc.EventHandler
	subscribed chan struct{}
	mu         sync.Mutex
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{}), subscribed: make(chan struct{})}
}

func (s *fakeSession) Connect(context.Context) error { return s.connectErr }

func (s *fakeSession) SubscribeMyMessages(_ context.Context, h rc.EventHandler) error {
	s.handler = h
	close(s.subscribed)
	return nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error { return errors.New("read: connection reset") }

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []string
	got    chan struct{}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev rc.Event) {
	d.mu.Lock()
	d.events = append(d.events, ev.Message.RoomID+"/"+ev.Message.ID)
	d.mu.Unlock()
	d.got <- struct{}{}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func TestRunReconnectsAndDispatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := newFakeSession()
	failing.connectErr = errors.New("dial: connection refused")
	first := newFakeSession()
	second := newFakeSession()
	sessions := []*fakeSession{failing, first, second}

	var mu sync.Mutex
	created := 0
	var stages []ErrorStage
	dispatcher := &recordingDispatcher{got: make(chan struct{}, 8)}
	builds := 0

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Dependencies{
			NewSession: func(*slog.Logger) (Session, error) {
				mu.Lock()
				defer mu.Unlock()
				s := sessions[created]
				created++
				return s, nil
			},
			BuildHandlers: func(context.Context, Session) (Dispatcher, error) {
				mu.Lock()
				builds++
				mu.Unlock()
				return dispatcher, nil
			},
		}, RunOptions{
			ReconnectDelay: time.Millisecond,
			Hooks: Hooks{OnError: func(_ context.Context, ev ErrorEvent) {
				mu.Lock()
				stages = append(stages, ev.Stage)
				mu.Unlock()
			}},
		})
	}()

	waitFor(t, first.subscribed)
	room := rc.RoomRef{Type: rc.RoomTypePublic, Name: "lunch"}
	first.handler(rc.Event{Message: rc.Message{ID: "m1", RoomID: "r1"}, Room: &room})
	first.handler(rc.Event{Message: rc.Message{ID: "m2", RoomID: "r1"}, Room: &room})
	waitFor(t, dispatcher.got)
	waitFor(t, dispatcher.got)

	close(first.done)
	waitFor(t, second.subscribed)
	if !first.isClosed() {
		t.Fatalf("dropped session was not closed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
	if len(stages) != 2 || stages[0] != ErrorStageConnect || stages[1] != ErrorStageDisconnect {
		t.Fatalf("stages = %v", stages)
	}
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.events) != 2 || dispatcher.events[0] != "r1/m1" || dispatcher.events[1] != "r1/m2" {
		t.Fatalf("events = %v", dispatcher.events)
	}
	if !second.isClosed() {
		t.Fatalf("session was not closed on shutdown")
	}
}

func TestRunRequiresDependencies(t *testing.T) {
	if err := Run(context.Background(), Dependencies{}, RunOptions{}); err == nil {
		t.Fatalf("Run() without dependencies expected error")
	}
}
