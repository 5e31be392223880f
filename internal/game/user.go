package game

import (
	"github.com/kanavis/onliapa/internal/auth"
	"github.com/kanavis/onliapa/internal/protocol"
)

// UserState is the per-user sub-state: Standby outside a round, Asking
// or Answering inside one. Sealed like the session state.
type UserState interface {
	userState()
}

type UserStandby struct{}

type UserAsking struct {
	Timer     *Timer
	Word      string
	PartnerID int64
}

type UserAnswering struct {
	Timer     *Timer
	PartnerID int64
}

func (*UserStandby) userState()   {}
func (*UserAsking) userState()    {}
func (*UserAnswering) userState() {}

// User is one participant's session-scoped record. It outlives the
// user's connections; reconnecting under the same name picks it up.
type User struct {
	Identity     auth.User
	Score        int
	GuessedWords []string
	State        UserState
}

func NewUser(identity auth.User) *User {
	return &User{
		Identity:     identity,
		GuessedWords: []string{},
		State:        &UserStandby{},
	}
}

func (u *User) AddPoint() { u.Score++ }

// Message is the public wire summary of the user.
func (u *User) Message() protocol.User {
	return protocol.User{
		UserName:     u.Identity.Name,
		UserID:       u.Identity.ID,
		Score:        u.Score,
		GuessedWords: u.GuessedWords,
	}
}
