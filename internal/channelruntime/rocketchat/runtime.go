package rocketchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	runtimeworker "github.com/fachschaft/fsbot/internal/channelruntime/worker"
	rc "github.com/fachschaft/fsbot/internal/rocketchat"
)

const (
	defaultReconnectDelay = 2 * time.Second
	defaultMaxConcurrency = 4
	defaultRoomQueue      = 64
	logoutTimeout         = 5 * time.Second
)

// Session is one authenticated realtime connection. A session is used for
// a single connection; the runtime asks for a new one after a disconnect.
type Session interface {
	Connect(ctx context.Context) error
	SubscribeMyMessages(ctx context.Context, handler rc.EventHandler) error
	Done() <-chan struct{}
	Err() error
	Close(ctx context.Context) error
}

// Dispatcher receives every message event of a session.
type Dispatcher interface {
	Dispatch(ctx context.Context, event rc.Event)
}

type Dependencies struct {
	Logger     func() (*slog.Logger, error)
	NewSession func(logger *slog.Logger) (Session, error)
	// BuildHandlers runs after login, so handlers can load state from the
	// server (poll recovery) before the first event arrives.
	BuildHandlers func(ctx context.Context, session Session) (Dispatcher, error)
}

type RunOptions struct {
	ReconnectDelay time.Duration
	MaxConcurrency int
	RoomQueue      int
	Hooks          Hooks
}

type ErrorStage string

const (
	ErrorStageConnect       ErrorStage = "connect"
	ErrorStageBuildHandlers ErrorStage = "build_handlers"
	ErrorStageSubscribe     ErrorStage = "subscribe"
	ErrorStageDisconnect    ErrorStage = "disconnect"
	ErrorStageEnqueue       ErrorStage = "enqueue"
)

type ErrorEvent struct {
	Stage     ErrorStage
	RoomID    string
	MessageID string
	Err       error
}

type Hooks struct {
	OnError     func(ctx context.Context, event ErrorEvent)
	OnConnected func(ctx context.Context)
}

func (h Hooks) callError(ctx context.Context, event ErrorEvent) {
	if h.OnError != nil && event.Err != nil {
		h.OnError(ctx, event)
	}
}

// Run keeps a session alive until ctx is canceled: connect and log in,
// build the handlers, subscribe to the bot's messages and hand every event
// to a per-room worker. Events of one room are handled in arrival order.
func Run(ctx context.Context, d Dependencies, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d.NewSession == nil {
		return fmt.Errorf("NewSession dependency missing")
	}
	if d.BuildHandlers == nil {
		return fmt.Errorf("BuildHandlers dependency missing")
	}
	logger := slog.Default()
	if d.Logger != nil {
		l, err := d.Logger()
		if err != nil {
			return err
		}
		logger = l
	}
	opts = normalizeRunOptions(opts)

	for {
		if ctx.Err() != nil {
			logger.Info("rocketchat_stop", "reason", "context_canceled")
			return nil
		}
		err := runSession(ctx, logger, d, opts)
		if ctx.Err() != nil {
			logger.Info("rocketchat_stop", "reason", "context_canceled")
			return nil
		}
		if err != nil {
			logger.Warn("rocketchat_session_error", "error", err.Error())
		}
		logger.Info("rocketchat_reconnect_wait", "delay", opts.ReconnectDelay.String())
		if err := sleepWithContext(ctx, opts.ReconnectDelay); err != nil {
			logger.Info("rocketchat_stop", "reason", "context_canceled")
			return nil
		}
	}
}

func runSession(ctx context.Context, logger *slog.Logger, d Dependencies, opts RunOptions) error {
	session, err := d.NewSession(logger)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := session.Connect(ctx); err != nil {
		opts.Hooks.callError(ctx, ErrorEvent{Stage: ErrorStageConnect, Err: err})
		_ = closeSession(session)
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := closeSession(session); err != nil {
			logger.Debug("rocketchat_logout_error", "error", err.Error())
		}
	}()
	logger.Info("rocketchat_connected")

	dispatcher, err := d.BuildHandlers(ctx, session)
	if err != nil {
		opts.Hooks.callError(ctx, ErrorEvent{Stage: ErrorStageBuildHandlers, Err: err})
		return fmt.Errorf("build handlers: %w", err)
	}

	pool := runtimeworker.NewPool[string, rc.Event](ctx, runtimeworker.PoolOptions[rc.Event]{
		MaxConcurrency: opts.MaxConcurrency,
		QueueSize:      opts.RoomQueue,
		Handle:         dispatcher.Dispatch,
	})
	defer pool.Close()

	err = session.SubscribeMyMessages(ctx, func(event rc.Event) {
		roomID := event.Message.RoomID
		if err := pool.TrySubmit(roomID, event); err != nil {
			logger.Warn("rocketchat_event_dropped", "room_id", roomID, "message_id", event.Message.ID, "error", err.Error())
			opts.Hooks.callError(ctx, ErrorEvent{Stage: ErrorStageEnqueue, RoomID: roomID, MessageID: event.Message.ID, Err: err})
		}
	})
	if err != nil {
		opts.Hooks.callError(ctx, ErrorEvent{Stage: ErrorStageSubscribe, Err: err})
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Info("rocketchat_subscribed")
	if opts.Hooks.OnConnected != nil {
		opts.Hooks.OnConnected(ctx)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-session.Done():
		err := session.Err()
		if err == nil {
			err = errors.New("connection closed")
		}
		opts.Hooks.callError(ctx, ErrorEvent{Stage: ErrorStageDisconnect, Err: err})
		return fmt.Errorf("disconnected: %w", err)
	}
}

func closeSession(s Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	return s.Close(ctx)
}

func normalizeRunOptions(opts RunOptions) RunOptions {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.RoomQueue <= 0 {
		opts.RoomQueue = defaultRoomQueue
	}
	return opts
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
