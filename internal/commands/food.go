package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/rocketchat"
)

var weekdays = map[string]time.Weekday{
	"montag":     time.Monday,
	"monday":     time.Monday,
	"dienstag":   time.Tuesday,
	"tuesday":    time.Tuesday,
	"mittwoch":   time.Wednesday,
	"wednesday":  time.Wednesday,
	"donnerstag": time.Thursday,
	"thursday":   time.Thursday,
	"freitag":    time.Friday,
	"friday":     time.Friday,
}

type Food struct {
	Chat  Messenger
	Meals Meals
	Now   func() time.Time
}

func (c *Food) Usage() []bot.UsageLine {
	return []bot.UsageLine{{
		Command:     "<essen | food> [ <n | today | tomorrow | monday .. friday> ]",
		Description: `Show meals of the day, of the next "n" days or on a specific day`,
	}}
}

func (c *Food) CanHandle(name string) bool { return hasName(name, "essen", "food") }

func (c *Food) Handle(ctx context.Context, _, args string, msg rocketchat.Message) error {
	offset, num, ok := mealWindow(args, c.now())
	if !ok {
		u := c.Usage()[0]
		_, err := c.Chat.SendMessage(ctx, msg.RoomID, "*Usage:*\n```"+u.Command+"\n    "+u.Description+"```")
		return err
	}
	text, err := c.Meals.Food(ctx, offset, num)
	if err != nil {
		return err
	}
	_, err = c.Chat.SendMessage(ctx, msg.RoomID, text)
	return err
}

func (c *Food) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// mealWindow maps the food arguments to the (offset, num) window of the
// meal service.
func mealWindow(args string, now time.Time) (int, int, bool) {
	args = strings.ToLower(strings.TrimSpace(args))
	switch args {
	case "", "heute", "today":
		return 0, 1, true
	case "morgen", "tomorrow":
		return 1, 1, true
	}
	if isDigits(args) {
		n, err := strconv.Atoi(args)
		if err != nil {
			return 0, 0, false
		}
		return 0, n, true
	}
	if day, ok := weekdays[args]; ok {
		return (int(day) - int(now.Weekday()) + 7) % 7, 1, true
	}
	return 0, 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
