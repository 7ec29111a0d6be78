package poll

// MaxOptions is the size of the letter emoji alphabet.
const MaxOptions = 26

var (
	// LetterEmojis are assigned to options in order.
	LetterEmojis = letterEmojis()
	// ExtraEmojis count additional people a voter brings along.
	ExtraEmojis = []string{":x1:", ":x2:", ":x3:", ":x4:"}
)

var extraWeights = map[string]int{
	":x1:": 1,
	":x2:": 2,
	":x3:": 3,
	":x4:": 4,
}

func letterEmojis() []string {
	out := make([]string, 0, MaxOptions)
	for c := 'a'; c <= 'z'; c++ {
		out = append(out, ":regional_indicator_"+string(c)+":")
	}
	return out
}

// ExtraWeight returns the number of additional people an extra-vote emoji
// stands for, or 0 for any other emoji.
func ExtraWeight(emoji string) int {
	return extraWeights[emoji]
}

// Option is one answer of a poll. Voters keeps the order in which users first
// reacted and never holds duplicates.
type Option struct {
	Text   string
	Emoji  string
	Voters []string
}

func (o *Option) HasVoter(user string) bool {
	for _, v := range o.Voters {
		if v == user {
			return true
		}
	}
	return false
}

func (o *Option) addVoter(user string) bool {
	if user == "" || o.HasVoter(user) {
		return false
	}
	o.Voters = append(o.Voters, user)
	return true
}

// setVoters replaces the voter list with users and reports whether the set
// of voters changed. Remaining voters keep their order, new ones are
// appended.
func (o *Option) setVoters(users []string) bool {
	want := make(map[string]struct{}, len(users))
	for _, u := range users {
		want[u] = struct{}{}
	}
	changed := false
	kept := o.Voters[:0]
	for _, v := range o.Voters {
		if _, ok := want[v]; ok {
			kept = append(kept, v)
			continue
		}
		changed = true
	}
	o.Voters = kept
	for _, u := range users {
		if o.addVoter(u) {
			changed = true
		}
	}
	return changed
}
