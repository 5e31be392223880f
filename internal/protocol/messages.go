package protocol

import (
	"fmt"
	"unicode/utf8"
)

// Inbound tags.
const (
	TagUserAuth         = "user-auth"
	TagNewGame          = "new-game"
	TagHatAddWords      = "hat-add-words"
	TagWordGuessed      = "word-guessed"
	TagAdminHatComplete = "admin-hat-complete"
	TagAdminStartRound  = "admin-start-round"
	TagAdminKickUser    = "admin-kick-user"
)

// Outbound tags.
const (
	TagAuthOK     = "auth-ok"
	TagNewGameID  = "new-game-id"
	TagUserState  = "user-state"
	TagGameState  = "game-state"
	TagNewUser    = "new-user"
	TagRemoveUser = "remove-user"
	TagStateSave  = "state-save"
	TagKick       = "kick"
)

// Domain rejection tags, sent only to the originating connection.
const (
	ErrWrongState      = "wrong-state"
	ErrWrongData       = "wrong-data"
	ErrUnavailableUser = "unavailable-user"
	ErrHatEmpty        = "hat-empty"
	ErrHatNotFull      = "hat-not-full"
	ErrUsersNotEnough  = "users-not-enough"
	ErrNoSuchUser      = "no-such-user"
	ErrWrongGame       = "wrong-game"
	ErrWrongPath       = "wrong-path"
	ErrAuth            = "auth-error"
)

type AuthRequest struct {
	UserName string `json:"user_name"`
}

func (m *AuthRequest) Validate() error {
	if utf8.RuneCountInString(m.UserName) < 3 {
		return fmt.Errorf("user_name: shorter than 3 characters")
	}
	return nil
}

type NewGameRequest struct {
	GameName        string `json:"game_name"`
	RoundLength     int    `json:"round_length"`
	HatWordsPerUser int    `json:"hat_words_per_user"`
}

func (m *NewGameRequest) Validate() error {
	if n := utf8.RuneCountInString(m.GameName); n < 3 || n > 100 {
		return fmt.Errorf("game_name: length %d outside 3..100", n)
	}
	if m.RoundLength < 10 || m.RoundLength > 1000 {
		return fmt.Errorf("round_length: %d outside 10..1000", m.RoundLength)
	}
	if m.HatWordsPerUser < 1 || m.HatWordsPerUser > 1000 {
		return fmt.Errorf("hat_words_per_user: %d outside 1..1000", m.HatWordsPerUser)
	}
	return nil
}

type HatAddWords struct {
	Words []string `json:"words"`
}

func (m *HatAddWords) Validate() error {
	if len(m.Words) < 1 {
		return fmt.Errorf("words: empty list")
	}
	for _, w := range m.Words {
		if utf8.RuneCountInString(w) < 2 {
			return fmt.Errorf("words: word %q shorter than 2 characters", w)
		}
	}
	return nil
}

type HatFillEnd struct {
	IgnoreNotFull bool `json:"ignore_not_full"`
}

func (m *HatFillEnd) Validate() error { return nil }

type AdminStartRound struct {
	UserIDFrom int64 `json:"user_id_from"`
	UserIDTo   int64 `json:"user_id_to"`
}

func (m *AdminStartRound) Validate() error {
	if m.UserIDFrom == 0 || m.UserIDTo == 0 {
		return fmt.Errorf("user_id_from and user_id_to are required")
	}
	return nil
}

type UserID struct {
	ID int64 `json:"user_id"`
}

func (m *UserID) Validate() error {
	if m.ID == 0 {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// Empty is the payload of tags that carry no data (word-guessed).
type Empty struct{}

func (m *Empty) Validate() error { return nil }

// AuthUser is the auth-ok reply payload.
type AuthUser struct {
	UserName string `json:"user_name"`
	UserID   int64  `json:"user_id"`
}

// User is the public summary of a participant.
type User struct {
	UserName     string   `json:"user_name"`
	UserID       int64    `json:"user_id"`
	Score        int      `json:"score"`
	GuessedWords []string `json:"guessed_words"`
}

type GameInfo struct {
	GameID          string `json:"game_id"`
	GameName        string `json:"game_name"`
	RoundLength     int    `json:"round_length"`
	HatWordsPerUser int    `json:"hat_words_per_user"`
	RoundNum        int    `json:"round_num"`
	HatWordsLeft    int    `json:"hat_words_left"`
}

type UserStateAsking struct {
	TimeLeft int    `json:"time_left"`
	Word     string `json:"word"`
	Other    User   `json:"other"`
}

type UserStateAnswering struct {
	TimeLeft int  `json:"time_left"`
	Other    User `json:"other"`
}

// UserState is the per-user sub-state frame; exactly one of the optional
// fields is set, matching state_name.
type UserState struct {
	StateName      string              `json:"state_name"`
	StateAsking    *UserStateAsking    `json:"state_asking,omitempty"`
	StateAnswering *UserStateAnswering `json:"state_answering,omitempty"`
}

type StateHatFill struct {
	Users []int64 `json:"users"`
}

type StateRound struct {
	TimeLeft     int      `json:"time_left"`
	Asking       User     `json:"asking"`
	Answering    User     `json:"answering"`
	GuessedWords []string `json:"guessed_words"`
}

type GameState struct {
	GameInfo     GameInfo      `json:"game_info"`
	StateName    string        `json:"state_name"`
	StateHatFill *StateHatFill `json:"state_hat_fill,omitempty"`
	StateRound   *StateRound   `json:"state_round,omitempty"`
	Users        []User        `json:"users"`
	Reason       string        `json:"reason,omitempty"`
	Appendix     any           `json:"appendix,omitempty"`
}

// GuessAppendix accompanies the user-guessed broadcast: who scored and
// which word was just taken out of the hat.
type GuessAppendix struct {
	User User   `json:"user"`
	Word string `json:"word"`
}

type RemoveUser struct {
	UserID int64 `json:"user_id"`
}

type StateSnapshot struct {
	State string `json:"state"`
}
