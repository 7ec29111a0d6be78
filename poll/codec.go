package poll

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// createdOnLayout matches the status messages written by earlier versions of
// the bot: local time with microseconds and no zone.
const createdOnLayout = "2006-01-02T15:04:05.000000"

type optionJSON struct {
	Text  string   `json:"text"`
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

type pollJSON struct {
	ID               string       `json:"id"`
	RoomID           string       `json:"room_id"`
	AdditionalPeople []optionJSON `json:"additional_people"`
	BotName          string       `json:"botname"`
	Options          []optionJSON `json:"options"`
	OriginalMsgID    string       `json:"original_msg_id"`
	PollMsgID        string       `json:"poll_msg_id"`
	Title            string       `json:"title"`
	CreatedOn        string       `json:"created_on"`
}

func encodeOption(o *Option) optionJSON {
	users := append([]string{}, o.Voters...)
	return optionJSON{Text: o.Text, Emoji: o.Emoji, Users: users}
}

// Marshal serializes p into the status message body.
func Marshal(p *Poll) (string, error) {
	data := pollJSON{
		ID:            p.ID,
		RoomID:        p.RoomID,
		BotName:       p.BotName,
		OriginalMsgID: p.OriginalMsgID,
		PollMsgID:     p.PollMsgID,
		Title:         p.Title,
		CreatedOn:     p.CreatedOn.In(time.Local).Format(createdOnLayout),
	}
	data.AdditionalPeople = make([]optionJSON, 0, len(p.Extra))
	for _, o := range p.Extra {
		data.AdditionalPeople = append(data.AdditionalPeople, encodeOption(o))
	}
	data.Options = make([]optionJSON, 0, len(p.Options))
	for _, o := range p.Options {
		data.Options = append(data.Options, encodeOption(o))
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal poll %s: %w", p.ID, err)
	}
	return string(raw), nil
}

// Unmarshal parses a status message body. The status message id is not part
// of the payload and stays empty.
func Unmarshal(text string) (*Poll, error) {
	var data pollJSON
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("decode poll: %w", err)
	}
	if strings.TrimSpace(data.ID) == "" {
		return nil, fmt.Errorf("decode poll: missing id")
	}
	if strings.TrimSpace(data.RoomID) == "" {
		return nil, fmt.Errorf("decode poll %s: missing room_id", data.ID)
	}
	if len(data.Options) > MaxOptions {
		return nil, fmt.Errorf("decode poll %s: %w", data.ID, ErrTooManyOpts)
	}
	createdOn, err := parseCreatedOn(data.CreatedOn)
	if err != nil {
		return nil, fmt.Errorf("decode poll %s: %w", data.ID, err)
	}

	p := &Poll{
		ID:            data.ID,
		RoomID:        data.RoomID,
		OriginalMsgID: data.OriginalMsgID,
		PollMsgID:     data.PollMsgID,
		BotName:       data.BotName,
		Title:         data.Title,
		CreatedOn:     createdOn,
	}
	seen := make(map[string]struct{}, len(data.Options))
	for _, o := range data.Options {
		if _, dup := seen[o.Emoji]; dup {
			return nil, fmt.Errorf("decode poll %s: emoji %s used twice", data.ID, o.Emoji)
		}
		seen[o.Emoji] = struct{}{}
		opt := &Option{Text: o.Text, Emoji: o.Emoji}
		opt.setVoters(o.Users)
		p.Options = append(p.Options, opt)
	}

	extra := make(map[string][]string, len(data.AdditionalPeople))
	for _, o := range data.AdditionalPeople {
		if ExtraWeight(o.Emoji) == 0 {
			return nil, fmt.Errorf("decode poll %s: unknown extra emoji %s", data.ID, o.Emoji)
		}
		extra[o.Emoji] = o.Users
	}
	for _, emoji := range ExtraEmojis {
		opt := &Option{Emoji: emoji}
		opt.setVoters(extra[emoji])
		p.Extra = append(p.Extra, opt)
	}
	p.recomputeWeights()
	return p, nil
}

func parseCreatedOn(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing created_on")
	}
	// Fractional seconds are optional when parsing.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_on %q", raw)
	}
	return t, nil
}
