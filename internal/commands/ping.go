package commands

import (
	"context"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

type Ping struct {
	Chat Messenger
}

func (c *Ping) Usage() []bot.UsageLine {
	return []bot.UsageLine{{Command: "ping", Description: `Reply with "Pong"`}}
}

func (c *Ping) CanHandle(name string) bool { return hasName(name, "ping", "pong") }

func (c *Ping) Handle(ctx context.Context, name, _ string, msg rocketchat.Message) error {
	reply := "Pong"
	if name == "pong" {
		reply = "Ping"
	}
	_, err := c.Chat.SendMessage(ctx, msg.RoomID, reply)
	return err
}
