// Package commands implements the chat commands of the bot. Every command
// satisfies bot.Command and talks to the chat server through the narrow
// interfaces below.
package commands

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/shlex"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/logutil"
	"github.com/fachschaft/fsbot/internal/outputfmt"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/fachschaft/fsbot/poll"
)

type Messenger interface {
	SendMessage(ctx context.Context, roomID, text string) (rocketchat.Message, error)
}

type Reactor interface {
	SetReaction(ctx context.Context, emoji, messageID string, on bool) error
}

type RoomLookup interface {
	RoomByID(ctx context.Context, roomID string) (rocketchat.Room, error)
}

type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, username, text string) (rocketchat.Message, error)
}

// Directory manages users and private groups.
type Directory interface {
	Users(ctx context.Context) ([]rocketchat.User, error)
	CreateGroup(ctx context.Context, name string, members []string) (rocketchat.Room, error)
	AddGroupOwner(ctx context.Context, roomID, userID string) error
}

// Polls is the poll manager as seen by the commands.
type Polls interface {
	LastActive(roomID string) (*poll.Poll, error)
	Create(ctx context.Context, roomID, commandMsgID, title string, options []string) (*poll.Poll, error)
	Push(ctx context.Context, p *poll.Poll, roomID string) error
	AddOptions(ctx context.Context, p *poll.Poll, texts []string, voter string) (int, error)
}

// Meals renders the meal menu of num days starting offset days from today.
type Meals interface {
	Food(ctx context.Context, offset, num int) (string, error)
}

var smartQuotesRE = regexp.MustCompile(`„|“|'|”|‘|’`)

// ParseArgs splits args like a shell would, after folding typographic
// quotes into '"'. A '#' is always literal, so "#general" stays an
// argument. Empty arguments are dropped.
func ParseArgs(args string) ([]string, error) {
	folded := smartQuotesRE.ReplaceAllString(args, `"`)
	// shlex starts a comment at a word-initial '#'. Escaped, it keeps the
	// rune both inside and outside double quotes.
	fields, err := shlex.Split(strings.ReplaceAll(folded, "#", `\#`))
	if err != nil {
		return nil, err
	}
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

func usageReply(usage []bot.UsageLine) string {
	return "*Usage:*\n```" + strings.Join(bot.FormatUsage(usage), "\n") + "```"
}

func errorReply(ctx context.Context, m Messenger, logger *slog.Logger, roomID string, err error) {
	text := outputfmt.FormatErrorForDisplay(err)
	if text == "" {
		return
	}
	if _, sendErr := m.SendMessage(ctx, roomID, text); sendErr != nil {
		logutil.Or(logger).Warn("command_error_reply_failed", "room_id", roomID, "error", sendErr.Error())
	}
}

func hasName(name string, names ...string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
