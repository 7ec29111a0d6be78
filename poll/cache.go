package poll

import (
	"sort"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
)

const (
	singleWordTries = 10
	doubleWordTries = 1000
)

// Keys names a poll by any of its index keys. Empty fields are ignored.
type Keys struct {
	ID            string
	PollMsgID     string
	OriginalMsgID string
	StatusMsgID   string
	RoomID        string
}

// Cache indexes polls by id, by their three message ids and by room. A room
// maps to the poll most recently created in or moved to it.
//
// Cache is not safe for concurrent use; the Manager serializes access.
type Cache struct {
	byID          map[string]*Poll
	byPollMsgID   map[string]*Poll
	byOriginalID  map[string]*Poll
	byStatusMsgID map[string]*Poll
	lastByRoom    map[string]*Poll

	nameFunc func(words int) string
}

func NewCache() *Cache {
	return &Cache{
		byID:          make(map[string]*Poll),
		byPollMsgID:   make(map[string]*Poll),
		byOriginalID:  make(map[string]*Poll),
		byStatusMsgID: make(map[string]*Poll),
		lastByRoom:    make(map[string]*Poll),
		nameFunc: func(words int) string {
			return petname.Generate(words, "-")
		},
	}
}

func (c *Cache) Len() int { return len(c.byID) }

// NewID returns a human readable id no cached poll uses. It tries single
// words first and falls back to two-word names.
func (c *Cache) NewID() (string, error) {
	tiers := []struct {
		words int
		tries int
	}{
		{1, singleWordTries},
		{2, doubleWordTries},
	}
	for _, tier := range tiers {
		for i := 0; i < tier.tries; i++ {
			id := strings.ToLower(strings.TrimSpace(c.nameFunc(tier.words)))
			if id == "" {
				continue
			}
			if _, taken := c.byID[id]; !taken {
				return id, nil
			}
		}
	}
	return "", ErrNoFreeID
}

// Get returns the first poll matching k, checking the id, the poll message,
// the original message, the status message and finally the room.
func (c *Cache) Get(k Keys) *Poll {
	if p := lookup(c.byID, k.ID); p != nil {
		return p
	}
	if p := lookup(c.byPollMsgID, k.PollMsgID); p != nil {
		return p
	}
	if p := lookup(c.byOriginalID, k.OriginalMsgID); p != nil {
		return p
	}
	if p := lookup(c.byStatusMsgID, k.StatusMsgID); p != nil {
		return p
	}
	return lookup(c.lastByRoom, k.RoomID)
}

func lookup(m map[string]*Poll, key string) *Poll {
	if key == "" {
		return nil
	}
	return m[key]
}

// Add indexes p under all keys it has and marks it as the room's latest
// poll. Polls already holding one of p's keys are evicted entirely.
func (c *Cache) Add(p *Poll) {
	c.index(p, true)
}

// Rekey moves p from the keys in old to the keys it has now. The room's
// latest poll only changes when p moved to another room.
func (c *Cache) Rekey(p *Poll, old Keys) {
	c.unindex(p, old, false)
	c.index(p, old.RoomID != p.RoomID || lookup(c.lastByRoom, p.RoomID) == nil)
}

// MarkActive makes p the latest poll of its room.
func (c *Cache) MarkActive(p *Poll) {
	if p.RoomID != "" && c.Contains(p) {
		c.lastByRoom[p.RoomID] = p
	}
}

// Remove drops the poll matching k from every index.
func (c *Cache) Remove(k Keys) (*Poll, error) {
	p := c.Get(k)
	if p == nil {
		return nil, ErrPollNotFound
	}
	c.unindex(p, p.Keys(), true)
	return p, nil
}

// Contains reports whether p itself is cached.
func (c *Cache) Contains(p *Poll) bool {
	return p != nil && c.byID[p.ID] == p
}

// Polls returns the cached polls ordered by creation time.
func (c *Cache) Polls() []*Poll {
	out := make([]*Poll, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedOn.Before(out[j].CreatedOn)
	})
	return out
}

// InRoom reports whether any cached poll lives in roomID.
func (c *Cache) InRoom(roomID string) bool {
	for _, p := range c.byID {
		if p.RoomID == roomID {
			return true
		}
	}
	return false
}

func (c *Cache) index(p *Poll, markActive bool) {
	k := p.Keys()
	for _, key := range []struct {
		m   map[string]*Poll
		val string
	}{
		{c.byID, k.ID},
		{c.byPollMsgID, k.PollMsgID},
		{c.byOriginalID, k.OriginalMsgID},
		{c.byStatusMsgID, k.StatusMsgID},
	} {
		if key.val == "" {
			continue
		}
		if other := key.m[key.val]; other != nil && other != p {
			c.unindex(other, other.Keys(), true)
		}
		key.m[key.val] = p
	}
	if markActive && k.RoomID != "" {
		c.lastByRoom[k.RoomID] = p
	}
}

// unindex deletes the mappings in k that still point at p. The room entry is
// only touched when dropRoom is set or p left that room.
func (c *Cache) unindex(p *Poll, k Keys, dropRoom bool) {
	for _, key := range []struct {
		m   map[string]*Poll
		val string
	}{
		{c.byID, k.ID},
		{c.byPollMsgID, k.PollMsgID},
		{c.byOriginalID, k.OriginalMsgID},
		{c.byStatusMsgID, k.StatusMsgID},
	} {
		if key.val != "" && key.m[key.val] == p {
			delete(key.m, key.val)
		}
	}
	if k.RoomID == "" || c.lastByRoom[k.RoomID] != p {
		return
	}
	if dropRoom || k.RoomID != p.RoomID {
		delete(c.lastByRoom, k.RoomID)
	}
}
