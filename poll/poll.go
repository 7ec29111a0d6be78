package poll

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fachschaft/fsbot/internal/rocketchat"
)

// Poll is a reaction based vote living in one chat room.
//
// ID, RoomID, OriginalMsgID, PollMsgID and StatusMsgID are index keys of
// the owning Cache; whoever changes them must call Cache.Rekey afterwards.
type Poll struct {
	ID            string
	RoomID        string
	OriginalMsgID string
	PollMsgID     string
	StatusMsgID   string
	BotName       string
	Title         string
	CreatedOn     time.Time
	Options       []*Option
	// Extra holds the four extra-vote options in ExtraEmojis order.
	Extra []*Option

	weights map[string]int
}

// New builds a poll with the given options. Options beyond MaxOptions and
// repeated texts are dropped.
func New(id, roomID, originalMsgID, botName, title string, options []string, createdOn time.Time) *Poll {
	p := &Poll{
		ID:            id,
		RoomID:        roomID,
		OriginalMsgID: originalMsgID,
		BotName:       botName,
		Title:         title,
		CreatedOn:     createdOn,
		Extra:         make([]*Option, 0, len(ExtraEmojis)),
	}
	for _, emoji := range ExtraEmojis {
		p.Extra = append(p.Extra, &Option{Emoji: emoji, Voters: p.placeholder()})
	}
	for _, text := range options {
		p.AddOption(text)
	}
	p.recomputeWeights()
	return p
}

// placeholder is the initial voter list of every option: the bot itself,
// which seeds the reactions and is never shown in tallies.
func (p *Poll) placeholder() []string {
	if p.BotName == "" {
		return nil
	}
	return []string{p.BotName}
}

// AddOption appends an option with the first unused letter emoji. It returns
// nil if the poll is full or an option with the same text exists.
func (p *Poll) AddOption(text string) *Option {
	if len(p.Options) >= MaxOptions {
		return nil
	}
	used := make(map[string]struct{}, len(p.Options))
	for _, o := range p.Options {
		if o.Text == text {
			return nil
		}
		used[o.Emoji] = struct{}{}
	}
	for _, emoji := range LetterEmojis {
		if _, ok := used[emoji]; ok {
			continue
		}
		o := &Option{Text: text, Emoji: emoji, Voters: p.placeholder()}
		p.Options = append(p.Options, o)
		return o
	}
	return nil
}

// SortOptions orders the options by text. Emojis stay with their options.
func (p *Poll) SortOptions() {
	sort.SliceStable(p.Options, func(i, j int) bool {
		return p.Options[i].Text < p.Options[j].Text
	})
}

// Weight is the number of people user votes for: one plus every extra-vote
// emoji the user reacted with.
func (p *Poll) Weight(user string) int {
	if w, ok := p.weights[user]; ok {
		return w
	}
	return 1
}

func (p *Poll) recomputeWeights() {
	weights := make(map[string]int)
	for _, o := range p.Extra {
		for _, u := range o.Voters {
			if _, ok := weights[u]; !ok {
				weights[u] = 1
			}
			weights[u] += ExtraWeight(o.Emoji)
		}
	}
	p.weights = weights
}

// UpdateReactions syncs the voters with the reactions of the live poll
// message and reports whether any voter set changed.
func (p *Poll) UpdateReactions(reactions rocketchat.Reactions) bool {
	changed := false
	for _, o := range p.Options {
		if o.setVoters(reactions.Users(o.Emoji)) {
			changed = true
		}
	}
	extraChanged := false
	for _, o := range p.Extra {
		if o.setVoters(reactions.Users(o.Emoji)) {
			extraChanged = true
		}
	}
	if extraChanged {
		p.recomputeWeights()
	}
	return changed || extraChanged
}

// Reactions exports the current voters in the shape updateMessage expects.
func (p *Poll) Reactions() rocketchat.Reactions {
	out := make(rocketchat.Reactions, len(p.Options)+len(p.Extra))
	for _, o := range p.Options {
		out[o.Emoji] = rocketchat.Reaction{Usernames: append([]string{}, o.Voters...)}
	}
	for _, o := range p.Extra {
		out[o.Emoji] = rocketchat.Reaction{Usernames: append([]string{}, o.Voters...)}
	}
	return out
}

// Render builds the message body of the poll. displayName maps usernames to
// the names shown next to each option.
func (p *Poll) Render(displayName func(username string) string) string {
	if displayName == nil {
		displayName = func(u string) string { return u }
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* \n\n", p.Title)
	for _, o := range p.Options {
		total := 0
		names := make([]string, 0, len(o.Voters))
		for _, u := range o.Voters {
			if u == p.BotName {
				continue
			}
			w := p.Weight(u)
			total += w
			names = append(names, fmt.Sprintf("%s[%d]", displayName(u), w))
		}
		fmt.Fprintf(&b, "*%s %s [%d]* \n %s \n\n ", o.Emoji, o.Text, total, strings.Join(names, ", "))
	}
	return b.String()
}

// CreatedOnDay reports whether the poll was created on the same calendar day
// as t, in t's location.
func (p *Poll) CreatedOnDay(t time.Time) bool {
	c := p.CreatedOn.In(t.Location())
	y1, m1, d1 := c.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Keys returns the cache keys the poll currently has.
func (p *Poll) Keys() Keys {
	return Keys{
		ID:            p.ID,
		PollMsgID:     p.PollMsgID,
		OriginalMsgID: p.OriginalMsgID,
		StatusMsgID:   p.StatusMsgID,
		RoomID:        p.RoomID,
	}
}
