package commands

import (
	"context"
	"fmt"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

// CatchAll accepts every command and points the sender to a direct
// conversation with the bot.
type CatchAll struct {
	Chat DirectMessenger
}

func (c *CatchAll) Usage() []bot.UsageLine { return nil }

func (c *CatchAll) CanHandle(string) bool { return true }

func (c *CatchAll) Handle(ctx context.Context, _, _ string, msg rocketchat.Message) error {
	text := fmt.Sprintf("Hey %s, if you want me to do something contact me right here :)", msg.CreatedBy.DisplayName())
	_, err := c.Chat.SendDirectMessage(ctx, msg.CreatedBy.Username, text)
	return err
}
