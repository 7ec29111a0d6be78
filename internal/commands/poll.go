package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/logutil"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/fachschaft/fsbot/poll"
)

const pushedReaction = ":white_check_mark:"

type Poll struct {
	Chat     Messenger
	Reaction Reactor
	Polls    Polls
	Logger   *slog.Logger
}

func (c *Poll) Usage() []bot.UsageLine {
	return []bot.UsageLine{
		{Command: "poll <poll_title> <option_1> .. <option_26>", Description: "Create a poll"},
		{Command: "poll_push #room", Description: "Push the poll into #room"},
	}
}

func (c *Poll) CanHandle(name string) bool { return hasName(name, "poll", "poll_push") }

func (c *Poll) Handle(ctx context.Context, name, args string, msg rocketchat.Message) error {
	if name == "poll_push" {
		return c.push(ctx, msg)
	}
	return c.create(ctx, args, msg)
}

func (c *Poll) create(ctx context.Context, args string, msg rocketchat.Message) error {
	fields, err := ParseArgs(args)
	if err != nil {
		errorReply(ctx, c.Chat, c.Logger, msg.RoomID, err)
		return nil
	}
	if len(fields) < 2 {
		_, err := c.Chat.SendMessage(ctx, msg.RoomID, usageReply(c.Usage()))
		return err
	}
	if _, err := c.Polls.Create(ctx, msg.RoomID, msg.ID, fields[0], fields[1:]); err != nil {
		errorReply(ctx, c.Chat, c.Logger, msg.RoomID, err)
		if errors.Is(err, poll.ErrTooManyOpts) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Poll) push(ctx context.Context, msg rocketchat.Message) error {
	p, err := c.Polls.LastActive(msg.RoomID)
	if err != nil {
		_, err := c.Chat.SendMessage(ctx, msg.RoomID, "Please create a poll first")
		return err
	}
	if len(msg.Channels) == 0 || msg.Channels[0].ID == "" {
		_, err := c.Chat.SendMessage(ctx, msg.RoomID, "Please specify a room")
		return err
	}
	if err := c.Polls.Push(ctx, p, msg.Channels[0].ID); err != nil {
		errorReply(ctx, c.Chat, c.Logger, msg.RoomID, err)
		return err
	}
	if c.Reaction != nil {
		if err := c.Reaction.SetReaction(ctx, pushedReaction, msg.ID, true); err != nil {
			logutil.Or(c.Logger).Warn("poll_push_reaction_failed", "message_id", msg.ID, "error", err.Error())
		}
	}
	return nil
}
