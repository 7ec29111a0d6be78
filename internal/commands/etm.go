package commands

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/logutil"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

const etmTitle = "ETM"

var defaultEtmTime = map[string]string{
	"etm":  "11:30",
	"etlm": "12:30",
}

var (
	quoteMarksRE = regexp.MustCompile(`"|„|“|'|”|‘|’`)
	lunchTimeRE  = regexp.MustCompile(`^\s*(1[1-4])[.:]?([0-5][0-9])?\s*$`)
)

// Etm shows the meals of the day and starts the lunch poll of a room, or
// adds options to the poll started earlier that day.
type Etm struct {
	Chat   Messenger
	Meals  Meals
	Polls  Polls
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Etm) Usage() []bot.UsageLine {
	return []bot.UsageLine{{
		Command: "<etm | etlm> [<poll_option>...]",
		Description: "Shows meal of the day and creates a poll with the given " +
			"options (default = 11:30) or adds the options to the poll",
	}}
}

func (c *Etm) CanHandle(name string) bool { return hasName(name, "etm", "etlm") }

func (c *Etm) Handle(ctx context.Context, name, args string, msg rocketchat.Message) error {
	options := []string{args}
	if len(quoteMarksRE.FindAllString(args, -1)) > 1 {
		parsed, err := ParseArgs(args)
		if err != nil {
			errorReply(ctx, c.Chat, c.Logger, msg.RoomID, err)
			return nil
		}
		options = parsed
	}
	if len(options) == 1 && strings.TrimSpace(options[0]) == "" {
		options = []string{defaultEtmTime[name]}
	} else {
		for i, o := range options {
			options[i] = NormalizeLunchTime(o)
		}
	}

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	if p, err := c.Polls.LastActive(msg.RoomID); err == nil && p.Title == etmTitle && p.CreatedOnDay(now) {
		var texts []string
		for _, o := range options {
			if strings.TrimSpace(o) != "" {
				texts = append(texts, o)
			}
		}
		_, err := c.Polls.AddOptions(ctx, p, texts, msg.CreatedBy.Username)
		return err
	}

	if text, err := c.Meals.Food(ctx, 0, 1); err != nil {
		logutil.Or(c.Logger).Warn("etm_meals_failed", "room_id", msg.RoomID, "error", err.Error())
	} else if _, err := c.Chat.SendMessage(ctx, msg.RoomID, text); err != nil {
		return err
	}
	if _, err := c.Polls.Create(ctx, msg.RoomID, msg.ID, etmTitle, options); err != nil {
		errorReply(ctx, c.Chat, c.Logger, msg.RoomID, err)
		return err
	}
	return nil
}

// NormalizeLunchTime turns "1230", "12.30" and "12" into "12:30" and
// "12:00" for hours 11 to 14. Other text is returned unchanged.
func NormalizeLunchTime(option string) string {
	m := lunchTimeRE.FindStringSubmatch(option)
	if m == nil {
		return option
	}
	minutes := m[2]
	if minutes == "" {
		minutes = "00"
	}
	return m[1] + ":" + minutes
}
