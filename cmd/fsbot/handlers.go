package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/commands"
	"github.com/fachschaft/fsbot/internal/logutil"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/fachschaft/fsbot/poll"
)

// chatClient is everything the handlers need from one connected session.
type chatClient interface {
	poll.Transport
	commands.Reactor
	commands.DirectMessenger
	commands.Directory
	RoomByName(ctx context.Context, name string) (rocketchat.Room, error)
	Username() string
}

type handlerDeps struct {
	Logger *slog.Logger
	Meals  commands.Meals
	Order  *commands.Order
	Report func(ctx context.Context, err error, event bot.Event)
	Now    func() time.Time
}

// buildHandlers restores the polls of the status room and wires the bot:
// poll rooms and the status room feed the poll manager, commands are served
// in direct messages as is and in groups and channels when the bot is
// mentioned. Public channels only get the harmless commands; everything
// else is answered with a pointer to a direct conversation.
func buildHandlers(ctx context.Context, chat chatClient, cfg botConfig, deps handlerDeps) (*bot.Dispatcher, error) {
	logger := logutil.Or(deps.Logger)
	name := chat.Username()

	statusRoom, err := chat.RoomByName(ctx, cfg.StatusRoom)
	if err != nil {
		return nil, fmt.Errorf("status room %q: %w", cfg.StatusRoom, err)
	}
	watched := bot.NewRoomSet()
	manager, err := poll.Open(ctx, chat, poll.Options{
		BotName:      name,
		StatusRoom:   statusRoom,
		HistoryCount: cfg.HistoryCount,
		Watcher:      watched,
		Logger:       logger.With("component", "poll"),
		Now:          deps.Now,
	})
	if err != nil {
		return nil, err
	}

	var dispatcher *bot.Dispatcher
	handlers := func() []bot.Handler { return dispatcher.Handlers() }

	shared := []bot.Command{
		&commands.Usage{Chat: chat, Rooms: chat, Handlers: handlers},
		&commands.Ping{Chat: chat},
		&commands.Poll{Chat: chat, Reaction: chat, Polls: manager, Logger: logger},
		&commands.Food{Chat: chat, Meals: deps.Meals, Now: deps.Now},
		&commands.Etm{Chat: chat, Meals: deps.Meals, Polls: manager, Now: deps.Now, Logger: logger},
	}
	full := append([]bot.Command(nil), shared...)
	if deps.Order != nil {
		full = append(full, deps.Order)
	}
	if cfg.Birthday {
		full = append(full, &commands.Birthday{Chat: chat, Directory: chat})
	}
	public := append(append([]bot.Command(nil), shared...), &commands.CatchAll{Chat: chat})
	withUsage := bot.RouterOptions{UsageOnUnknown: true, UsageHandlers: handlers}

	direct, err := bot.RoomTypes(
		bot.IgnoreOwn(bot.NewRouter(chat, withUsage, full...), name),
		bot.RoomTypeFilter{Direct: true},
	)
	if err != nil {
		return nil, err
	}
	// Direct rooms have no name, so the blacklist only covers groups and
	// channels.
	blacklisted := bot.NewRoomSet(cfg.Blacklist...)
	groups, err := bot.RoomTypes(
		bot.Blacklist(bot.IgnoreOwn(bot.Mention(bot.NewRouter(chat, withUsage, full...), name), name), blacklisted),
		bot.RoomTypeFilter{Private: true},
	)
	if err != nil {
		return nil, err
	}
	channels, err := bot.RoomTypes(
		bot.Blacklist(bot.IgnoreOwn(bot.Mention(bot.NewRouter(chat, bot.RouterOptions{}, public...), name), name), blacklisted),
		bot.RoomTypeFilter{Public: true},
	)
	if err != nil {
		return nil, err
	}

	pollRooms := bot.Whitelist(bot.HandlerFunc(func(ctx context.Context, ev bot.Event) error {
		return manager.HandleRoomMessage(ctx, ev.Message)
	}), watched, true)
	status := bot.Whitelist(bot.HandlerFunc(func(ctx context.Context, ev bot.Event) error {
		return manager.HandleStatusMessage(ctx, ev.Message)
	}), bot.NewRoomSet(statusRoom.Name), false)

	dispatcher = bot.NewDispatcher(logger, deps.Report, pollRooms, status, direct, groups, channels)
	return dispatcher, nil
}
