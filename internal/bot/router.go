package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fachschaft/fsbot/internal/rocketchat"
)

const usagePadding = 5

// Replier posts text into a room.
type Replier interface {
	SendMessage(ctx context.Context, roomID, text string) (rocketchat.Message, error)
}

type RouterOptions struct {
	// UsageOnUnknown answers unknown commands with the room's usage text.
	UsageOnUnknown bool
	// UsageHandlers lists the handlers whose usage is printed. Defaults to
	// the router itself.
	UsageHandlers func() []Handler
}

// Router splits a message into "command args" and hands it to the first
// command that accepts the command name.
type Router struct {
	commands []Command
	replier  Replier
	opts     RouterOptions
}

func NewRouter(replier Replier, opts RouterOptions, commands ...Command) *Router {
	return &Router{commands: commands, replier: replier, opts: opts}
}

func (r *Router) Applicable(rocketchat.RoomRef) bool { return true }

func (r *Router) Usage() []UsageLine {
	var out []UsageLine
	for _, c := range r.commands {
		out = append(out, c.Usage()...)
	}
	return out
}

func (r *Router) Handle(ctx context.Context, event Event) error {
	name, args := SplitCommand(event.Message.Text)
	if name == "" {
		return nil
	}
	for _, c := range r.commands {
		if c.CanHandle(name) {
			return c.Handle(ctx, name, args, event.Message)
		}
	}
	if !r.opts.UsageOnUnknown || r.replier == nil {
		return nil
	}
	handlers := []Handler{r}
	if r.opts.UsageHandlers != nil {
		handlers = r.opts.UsageHandlers()
	}
	_, err := r.replier.SendMessage(ctx, event.Message.RoomID, UsageMessage(handlers, event.Room))
	return err
}

// SplitCommand returns the lower-cased first word of text and the rest with
// leading whitespace removed.
func SplitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	idx := strings.IndexFunc(text, isSpace)
	if idx < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:idx]), strings.TrimLeftFunc(text[idx:], isSpace)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// UsageMessage renders the usage of every handler applicable to room.
func UsageMessage(handlers []Handler, room rocketchat.RoomRef) string {
	var lines []string
	for _, h := range handlers {
		if !h.Applicable(room) {
			continue
		}
		lines = append(lines, FormatUsage(h.Usage())...)
	}
	return "Usage:\n```" + strings.Join(lines, "\n") + "```"
}

// FormatUsage renders usage lines as "command\n     description".
func FormatUsage(usage []UsageLine) []string {
	pad := strings.Repeat(" ", usagePadding)
	out := make([]string, 0, len(usage))
	for _, u := range usage {
		out = append(out, u.Command+"\n"+pad+u.Description)
	}
	return out
}

// Dispatcher delivers events to every applicable handler in order.
type Dispatcher struct {
	handlers []Handler
	logger   *slog.Logger
	report   func(ctx context.Context, err error, event Event)
}

func NewDispatcher(logger *slog.Logger, report func(ctx context.Context, err error, event Event), handlers ...Handler) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: handlers, logger: logger, report: report}
}

func (d *Dispatcher) Handlers() []Handler {
	return append([]Handler(nil), d.handlers...)
}

// Dispatch runs every applicable handler. A failing handler does not stop
// the others.
func (d *Dispatcher) Dispatch(ctx context.Context, ev rocketchat.Event) {
	if ev.Room == nil {
		d.logger.Debug("bot_event_without_room", "message_id", ev.Message.ID)
		return
	}
	event := Event{Message: ev.Message, Room: *ev.Room}
	for _, h := range d.handlers {
		if ctx.Err() != nil {
			return
		}
		if !h.Applicable(event.Room) {
			continue
		}
		if err := h.Handle(ctx, event); err != nil {
			d.logger.Warn("bot_handler_error",
				"room_id", event.Message.RoomID,
				"room_name", event.Room.Name,
				"message_id", event.Message.ID,
				"error", err.Error(),
			)
			if d.report != nil {
				d.report(ctx, err, event)
			}
		}
	}
}
