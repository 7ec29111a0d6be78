package commands

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

var whitespaceRE = regexp.MustCompile(`\s`)

// Birthday creates a private group with everybody except the mentioned
// user, owned by the sender.
type Birthday struct {
	Chat      Messenger
	Directory Directory
}

func (c *Birthday) Usage() []bot.UsageLine {
	return []bot.UsageLine{{Command: "birthday @user", Description: "Create a private group with all user except the mentioned one"}}
}

func (c *Birthday) CanHandle(name string) bool { return name == "birthday" }

func (c *Birthday) Handle(ctx context.Context, _, _ string, msg rocketchat.Message) error {
	if len(msg.Mentions) == 0 {
		_, err := c.Chat.SendMessage(ctx, msg.RoomID, "Please mention a user with `@user`")
		return err
	}
	target := msg.Mentions[0]
	if target.Username == msg.CreatedBy.Username {
		_, err := c.Chat.SendMessage(ctx, msg.RoomID, "Please mention someone other than yourself")
		return err
	}

	users, err := c.Directory.Users(ctx)
	if err != nil {
		return err
	}
	members := make([]string, 0, len(users))
	for _, u := range users {
		if u.Username != "" && u.Username != target.Username {
			members = append(members, u.Username)
		}
	}

	room, err := c.Directory.CreateGroup(ctx, BirthdayRoomName(target), members)
	if err != nil {
		var apiErr *rocketchat.APIError
		text := err.Error()
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			text = apiErr.Message
		}
		_, sendErr := c.Chat.SendMessage(ctx, msg.RoomID, text)
		return sendErr
	}
	return c.Directory.AddGroupOwner(ctx, room.ID, msg.CreatedBy.ID)
}

// BirthdayRoomName is "geburtstag_" followed by the lower-cased name of u
// with whitespace replaced by underscores.
func BirthdayRoomName(u rocketchat.UserRef) string {
	name := u.Name
	if strings.TrimSpace(name) == "" {
		name = u.Username
	}
	return "geburtstag_" + strings.ToLower(whitespaceRE.ReplaceAllString(name, "_"))
}
