package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fachschaft/fsbot/internal/bot"
	"github.com/fachschaft/fsbot/internal/rocketchat"
	"github.com/fachschaft/fsbot/poll"
)

type sent struct {
	room string
	text string
}

type fakeChat struct {
	sent      []sent
	direct    []sent
	reactions []string
	rooms     map[string]rocketchat.Room
	users     []rocketchat.User
	groups    map[string][]string
	owners    []string
	groupErr  error
}

func (f *fakeChat) SendMessage(_ context.Context, roomID, text string) (rocketchat.Message, error) {
	f.sent = append(f.sent, sent{room: roomID, text: text})
	return rocketchat.Message{ID: "reply", RoomID: roomID, Text: text}, nil
}

func (f *fakeChat) SetReaction(_ context.Context, emoji, messageID string, on bool) error {
	f.reactions = append(f.reactions, emoji+"@"+messageID)
	return nil
}

func (f *fakeChat) RoomByID(_ context.Context, roomID string) (rocketchat.Room, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return rocketchat.Room{}, rocketchat.ErrNotFound
	}
	return room, nil
}

func (f *fakeChat) SendDirectMessage(_ context.Context, username, text string) (rocketchat.Message, error) {
	f.direct = append(f.direct, sent{room: username, text: text})
	return rocketchat.Message{}, nil
}

func (f *fakeChat) Users(context.Context) ([]rocketchat.User, error) { return f.users, nil }

func (f *fakeChat) CreateGroup(_ context.Context, name string, members []string) (rocketchat.Room, error) {
	if f.groupErr != nil {
		return rocketchat.Room{}, f.groupErr
	}
	if f.groups == nil {
		f.groups = map[string][]string{}
	}
	f.groups[name] = members
	return rocketchat.Room{ID: "group-" + name, Name: name, Type: rocketchat.RoomTypePrivate}, nil
}

func (f *fakeChat) AddGroupOwner(_ context.Context, roomID, userID string) error {
	f.owners = append(f.owners, roomID+"|"+userID)
	return nil
}

func (f *fakeChat) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("nothing was sent")
	}
	return f.sent[len(f.sent)-1].text
}

type fakePolls struct {
	last      *poll.Poll
	created   []string
	createErr error
	pushed    []string
	added     []string
	voter     string
}

func (f *fakePolls) LastActive(string) (*poll.Poll, error) {
	if f.last == nil {
		return nil, poll.ErrPollNotFound
	}
	return f.last, nil
}

func (f *fakePolls) Create(_ context.Context, roomID, commandMsgID, title string, options []string) (*poll.Poll, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, title+"|"+strings.Join(options, ","))
	return poll.New("otter", roomID, commandMsgID, "fsbot", title, options, time.Now()), nil
}

func (f *fakePolls) Push(_ context.Context, p *poll.Poll, roomID string) error {
	f.pushed = append(f.pushed, p.ID+"->"+roomID)
	return nil
}

func (f *fakePolls) AddOptions(_ context.Context, _ *poll.Poll, texts []string, voter string) (int, error) {
	f.added = append(f.added, texts...)
	f.voter = voter
	return len(texts), nil
}

type fakeMeals struct {
	windows [][2]int
	err     error
}

func (f *fakeMeals) Food(_ context.Context, offset, num int) (string, error) {
	f.windows = append(f.windows, [2]int{offset, num})
	if f.err != nil {
		return "", f.err
	}
	return "```\nmenu\n```", nil
}

func message(text string) rocketchat.Message {
	return rocketchat.Message{
		ID:        "cmd-1",
		RoomID:    "room-1",
		Text:      text,
		CreatedBy: rocketchat.UserRef{ID: "u-alice", Username: "alice", Name: "Alice A"},
	}
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{`Lunch Pizza Salad`, []string{"Lunch", "Pizza", "Salad"}},
		{`"Where to eat" „Mensa Süd“ 'Thai'`, []string{"Where to eat", "Mensa Süd", "Thai"}},
		{`Lunch "" Salad`, []string{"Lunch", "Salad"}},
		{`"Where?" C# #general F#`, []string{"Where?", "C#", "#general", "F#"}},
		{`'Which channel' #a "#b c"`, []string{"Which channel", "#a", "#b c"}},
		{`#only`, []string{"#only"}},
		{``, nil},
	}
	for _, tc := range cases {
		got, err := ParseArgs(tc.in)
		if err != nil {
			t.Fatalf("ParseArgs(%q) error = %v", tc.in, err)
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("ParseArgs(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := ParseArgs(`"unterminated`); err == nil {
		t.Fatalf("ParseArgs(unterminated) expected error")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	c := &Ping{Chat: chat}
	if !c.CanHandle("ping") || !c.CanHandle("pong") || c.CanHandle("pin") {
		t.Fatalf("CanHandle() mismatch")
	}
	_ = c.Handle(context.Background(), "ping", "", message("ping"))
	_ = c.Handle(context.Background(), "pong", "", message("pong"))
	if chat.sent[0].text != "Pong" || chat.sent[1].text != "Ping" {
		t.Fatalf("sent = %+v", chat.sent)
	}
}

func TestUsagePrintsApplicableHandlers(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{rooms: map[string]rocketchat.Room{
		"room-1": {ID: "room-1", Name: "board", Type: rocketchat.RoomTypePrivate},
	}}
	ping := bot.NewRouter(chat, bot.RouterOptions{}, &Ping{Chat: chat})
	lunchOnly := bot.Whitelist(bot.NewRouter(chat, bot.RouterOptions{}, &Food{Chat: chat}), bot.NewRoomSet("lunch"), false)
	c := &Usage{Chat: chat, Rooms: chat, Handlers: func() []bot.Handler { return []bot.Handler{ping, lunchOnly} }}

	if err := c.Handle(context.Background(), "help", "", message("help")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	want := "Usage:\n```ping\n     Reply with \"Pong\"```"
	if got := chat.lastText(t); got != want {
		t.Fatalf("usage = %q, want %q", got, want)
	}

	missing := message("help")
	missing.RoomID = "unknown"
	if err := c.Handle(context.Background(), "help", "", missing); !errors.Is(err, rocketchat.ErrNotFound) {
		t.Fatalf("Handle(unknown room) error = %v", err)
	}
}

func TestPollCreate(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	polls := &fakePolls{}
	c := &Poll{Chat: chat, Reaction: chat, Polls: polls}
	ctx := context.Background()

	if err := c.Handle(ctx, "poll", `Lunch Pizza "Thai curry"`, message("")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(polls.created) != 1 || polls.created[0] != "Lunch|Pizza,Thai curry" {
		t.Fatalf("created = %v", polls.created)
	}

	if err := c.Handle(ctx, "poll", "Lunch", message("")); err != nil {
		t.Fatalf("Handle(usage) error = %v", err)
	}
	want := "*Usage:*\n```poll <poll_title> <option_1> .. <option_26>\n     Create a poll\npoll_push #room\n     Push the poll into #room```"
	if got := chat.lastText(t); got != want {
		t.Fatalf("usage = %q, want %q", got, want)
	}
}

func TestPollCreateErrors(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	polls := &fakePolls{createErr: poll.ErrTooManyOpts}
	c := &Poll{Chat: chat, Polls: polls}
	if err := c.Handle(context.Background(), "poll", "Lunch a b", message("")); err != nil {
		t.Fatalf("Handle(too many) error = %v, want reply only", err)
	}
	if chat.lastText(t) != poll.ErrTooManyOpts.Error() {
		t.Fatalf("reply = %q", chat.lastText(t))
	}

	failed := &poll.OpError{Op: "create", PollID: "otter", Err: errors.New("boom")}
	polls.createErr = failed
	if err := c.Handle(context.Background(), "poll", "Lunch a b", message("")); !errors.Is(err, poll.ErrPollFailed) {
		t.Fatalf("Handle(failed) error = %v", err)
	}
	if !strings.Contains(chat.lastText(t), "boom") {
		t.Fatalf("reply = %q", chat.lastText(t))
	}
}

func TestPollPush(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	polls := &fakePolls{}
	c := &Poll{Chat: chat, Reaction: chat, Polls: polls}
	ctx := context.Background()

	msg := message("poll_push #lunch")
	_ = c.Handle(ctx, "poll_push", "#lunch", msg)
	if chat.lastText(t) != "Please create a poll first" {
		t.Fatalf("reply = %q", chat.lastText(t))
	}

	polls.last = poll.New("otter", "room-1", "cmd-0", "fsbot", "Lunch", []string{"a"}, time.Now())
	_ = c.Handle(ctx, "poll_push", "", message("poll_push"))
	if chat.lastText(t) != "Please specify a room" {
		t.Fatalf("reply = %q", chat.lastText(t))
	}

	msg.Channels = []rocketchat.ChannelRef{{ID: "room-2", Name: "lunch"}}
	if err := c.Handle(ctx, "poll_push", "#lunch", msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(polls.pushed) != 1 || polls.pushed[0] != "otter->room-2" {
		t.Fatalf("pushed = %v", polls.pushed)
	}
	if len(chat.reactions) != 1 || chat.reactions[0] != ":white_check_mark:@cmd-1" {
		t.Fatalf("reactions = %v", chat.reactions)
	}
}

func TestMealWindow(t *testing.T) {
	t.Parallel()

	wednesday := time.Date(2024, 5, 8, 10, 0, 0, 0, time.Local)
	cases := []struct {
		args        string
		offset, num int
		ok          bool
	}{
		{"", 0, 1, true},
		{" Heute ", 0, 1, true},
		{"tomorrow", 1, 1, true},
		{"morgen", 1, 1, true},
		{"5", 0, 5, true},
		{"wednesday", 0, 1, true},
		{"Freitag", 2, 1, true},
		{"monday", 5, 1, true},
		{"saturday", 0, 0, false},
		{"-1", 0, 0, false},
		{"soon", 0, 0, false},
	}
	for _, tc := range cases {
		offset, num, ok := mealWindow(tc.args, wednesday)
		if offset != tc.offset || num != tc.num || ok != tc.ok {
			t.Fatalf("mealWindow(%q) = %d, %d, %v; want %d, %d, %v", tc.args, offset, num, ok, tc.offset, tc.num, tc.ok)
		}
	}
}

func TestFood(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	meals := &fakeMeals{}
	c := &Food{Chat: chat, Meals: meals}
	ctx := context.Background()

	if err := c.Handle(ctx, "food", "3", message("food 3")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if meals.windows[0] != [2]int{0, 3} || chat.lastText(t) != "```\nmenu\n```" {
		t.Fatalf("windows = %v, reply = %q", meals.windows, chat.lastText(t))
	}

	_ = c.Handle(ctx, "food", "someday", message("food someday"))
	want := "*Usage:*\n```<essen | food> [ <n | today | tomorrow | monday .. friday> ]\n    Show meals of the day, of the next \"n\" days or on a specific day```"
	if got := chat.lastText(t); got != want {
		t.Fatalf("usage = %q, want %q", got, want)
	}
}

func TestNormalizeLunchTime(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"12:30":  "12:30",
		"1230":   "12:30",
		"12":     "12:00",
		" 12.30": "12:30",
		"11:45 ": "11:45",
		"15:00":  "15:00",
		"1275":   "1275",
		"Mensa":  "Mensa",
	}
	for in, want := range cases {
		if got := NormalizeLunchTime(in); got != want {
			t.Fatalf("NormalizeLunchTime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEtmCreatesPoll(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	meals := &fakeMeals{}
	polls := &fakePolls{}
	c := &Etm{Chat: chat, Meals: meals, Polls: polls}
	ctx := context.Background()

	if err := c.Handle(ctx, "etlm", "", message("etlm")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(chat.sent) != 1 || chat.sent[0].text != "```\nmenu\n```" {
		t.Fatalf("sent = %+v", chat.sent)
	}
	if polls.created[0] != "ETM|12:30" {
		t.Fatalf("created = %v", polls.created)
	}

	if err := c.Handle(ctx, "etm", "1215", message("etm 1215")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if polls.created[1] != "ETM|12:15" {
		t.Fatalf("created = %v", polls.created)
	}

	if err := c.Handle(ctx, "etm", `"11" "Mensa Süd"`, message("")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if polls.created[2] != "ETM|11:00,Mensa Süd" {
		t.Fatalf("created = %v", polls.created)
	}
}

func TestEtmCreatesPollWhenMealsFail(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	polls := &fakePolls{}
	c := &Etm{Chat: chat, Meals: &fakeMeals{err: errors.New("menu down")}, Polls: polls}
	if err := c.Handle(context.Background(), "etm", "", message("etm")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(chat.sent) != 0 || len(polls.created) != 1 {
		t.Fatalf("sent = %+v, created = %v", chat.sent, polls.created)
	}
}

func TestEtmAddsToTodaysPoll(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 8, 10, 0, 0, 0, time.Local)
	chat := &fakeChat{}
	polls := &fakePolls{last: poll.New("otter", "room-1", "cmd-0", "fsbot", "ETM", []string{"11:30"}, now.Add(-time.Hour))}
	c := &Etm{Chat: chat, Meals: &fakeMeals{}, Polls: polls, Now: func() time.Time { return now }}

	if err := c.Handle(context.Background(), "etm", "1245", message("etm 1245")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(polls.created) != 0 || len(chat.sent) != 0 {
		t.Fatalf("created = %v, sent = %+v", polls.created, chat.sent)
	}
	if len(polls.added) != 1 || polls.added[0] != "12:45" || polls.voter != "alice" {
		t.Fatalf("added = %v by %q", polls.added, polls.voter)
	}

	polls.last = poll.New("otter", "room-1", "cmd-0", "fsbot", "ETM", nil, now.AddDate(0, 0, -1))
	_ = c.Handle(context.Background(), "etm", "", message("etm"))
	if len(polls.created) != 1 {
		t.Fatalf("yesterday's poll was extended, created = %v", polls.created)
	}
}

func TestOrderArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		command, args string
		want          string
	}{
		{"order", "mate", "order mate --user=alice --force"},
		{"order", "mate -u bob", "order mate -u bob --force"},
		{"dms", "buy cola --force", "buy cola --force --user=alice"},
		{"dms", "comment nice --user=carol", "comment nice --user=carol"},
		{"drinks", "list  all", "list all"},
		{"dms", "", ""},
	}
	for _, tc := range cases {
		got := strings.Join(OrderArgs(tc.command, tc.args, "alice"), " ")
		if got != tc.want {
			t.Fatalf("OrderArgs(%q, %q) = %q, want %q", tc.command, tc.args, got, tc.want)
		}
	}
}

func TestOrderRunsCLI(t *testing.T) {
	t.Parallel()

	rc := filepath.Join(t.TempDir(), ".dmsrc")
	var calls []string
	outputs := [][]byte{[]byte("Ordered 1x mate\n"), nil, nil}
	errs := []error{nil, nil, errors.New("exit status 1")}
	chat := &fakeChat{}
	c, err := NewOrder(chat, OrderOptions{
		Token:  "secret",
		RCFile: rc,
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			i := len(calls)
			calls = append(calls, name+" "+strings.Join(args, " "))
			return outputs[i], errs[i]
		},
	})
	if err != nil {
		t.Fatalf("NewOrder() error = %v", err)
	}
	data, err := os.ReadFile(rc)
	if err != nil || !strings.Contains(string(data), "token = secret") {
		t.Fatalf("rc file = %q, %v", data, err)
	}

	ctx := context.Background()
	_ = c.Handle(ctx, "order", "mate", message("order mate"))
	_ = c.Handle(ctx, "dms", "sync", message("dms sync"))
	_ = c.Handle(ctx, "dms", "broken", message("dms broken"))
	if calls[0] != "dms order mate --user=alice --force" {
		t.Fatalf("calls = %v", calls)
	}
	got := []string{chat.sent[0].text, chat.sent[1].text, chat.sent[2].text}
	want := []string{"Ordered 1x mate", "Done.", "exit status 1"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("replies = %q, want %q", got, want)
	}
}

func TestBirthday(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{users: []rocketchat.User{
		{ID: "u-alice", Username: "alice"},
		{ID: "u-bob", Username: "bob"},
		{ID: "u-carol", Username: "carol"},
	}}
	c := &Birthday{Chat: chat, Directory: chat}
	ctx := context.Background()

	_ = c.Handle(ctx, "birthday", "", message("birthday"))
	if chat.lastText(t) != "Please mention a user with `@user`" {
		t.Fatalf("reply = %q", chat.lastText(t))
	}

	self := message("birthday @alice")
	self.Mentions = []rocketchat.UserRef{{Username: "alice"}}
	_ = c.Handle(ctx, "birthday", "@alice", self)
	if chat.lastText(t) != "Please mention someone other than yourself" {
		t.Fatalf("reply = %q", chat.lastText(t))
	}

	msg := message("birthday @bob")
	msg.Mentions = []rocketchat.UserRef{{Username: "bob", Name: "Bob  Builder"}}
	if err := c.Handle(ctx, "birthday", "@bob", msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	members, ok := chat.groups["geburtstag_bob__builder"]
	if !ok || strings.Join(members, ",") != "alice,carol" {
		t.Fatalf("groups = %v", chat.groups)
	}
	if len(chat.owners) != 1 || chat.owners[0] != "group-geburtstag_bob__builder|u-alice" {
		t.Fatalf("owners = %v", chat.owners)
	}
}

func TestBirthdayReportsCreateError(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{groupErr: &rocketchat.APIError{Endpoint: "groups.create", Status: 400, Message: "A room with that name already exists"}}
	c := &Birthday{Chat: chat, Directory: chat}
	msg := message("birthday @bob")
	msg.Mentions = []rocketchat.UserRef{{Username: "bob"}}
	if err := c.Handle(context.Background(), "birthday", "@bob", msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if chat.lastText(t) != "A room with that name already exists" || len(chat.owners) != 0 {
		t.Fatalf("reply = %q, owners = %v", chat.lastText(t), chat.owners)
	}
}

func TestCatchAll(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	c := &CatchAll{Chat: chat}
	if !c.CanHandle("anything") || len(c.Usage()) != 0 {
		t.Fatalf("catch-all must accept everything and print no usage")
	}
	_ = c.Handle(context.Background(), "dance", "", message("dance"))
	if len(chat.direct) != 1 || chat.direct[0].room != "alice" ||
		chat.direct[0].text != "Hey Alice A, if you want me to do something contact me right here :)" {
		t.Fatalf("direct = %+v", chat.direct)
	}
}
