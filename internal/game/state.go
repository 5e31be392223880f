package game

// State is the session state: exactly one of HatFill, Standby or Round.
// The interface is sealed so the variant set is closed.
type State interface {
	Name() string
	sessionState()
}

// HatFill is the initial state: users contribute their words.
type HatFill struct {
	// WordCounts tracks how many words each user has put in.
	WordCounts map[int64]int
	// Contributed is the set of users who completed their contribution.
	Contributed map[int64]struct{}
}

func NewHatFill() *HatFill {
	return &HatFill{
		WordCounts:  make(map[int64]int),
		Contributed: make(map[int64]struct{}),
	}
}

// Standby is the between-rounds state.
type Standby struct{}

// Round is a timed pairing of an asking and an answering user. The
// participants are referenced by identity key and resolved through the
// session's user map.
type Round struct {
	AskingID    int64
	AnsweringID int64
	Word        string
	Timer       *Timer
	Guessed     []string
}

func (*HatFill) Name() string { return "hat-fill" }
func (*Standby) Name() string { return "standby" }
func (*Round) Name() string   { return "round" }

func (*HatFill) sessionState() {}
func (*Standby) sessionState() {}
func (*Round) sessionState()   {}
