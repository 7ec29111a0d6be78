package commands

import (
	"context"
	"fmt"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

// Usage prints the commands of every handler active in the asking room.
type Usage struct {
	Chat     Messenger
	Rooms    RoomLookup
	Handlers func() []bot.Handler
}

func (c *Usage) Usage() []bot.UsageLine {
	return []bot.UsageLine{{Command: "help | usage | ?", Description: "Print all available commands"}}
}

func (c *Usage) CanHandle(name string) bool { return hasName(name, "help", "usage", "?") }

func (c *Usage) Handle(ctx context.Context, _, _ string, msg rocketchat.Message) error {
	room, err := c.Rooms.RoomByID(ctx, msg.RoomID)
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	var handlers []bot.Handler
	if c.Handlers != nil {
		handlers = c.Handlers()
	}
	_, err = c.Chat.SendMessage(ctx, msg.RoomID, bot.UsageMessage(handlers, room.Ref(true)))
	return err
}
