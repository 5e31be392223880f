package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kanavis/onliapa/internal/auth"
)

// The snapshot types are the durable representation of a session.
// In-progress round state is deliberately excluded: a restored session
// always wakes up in Standby.

type hatSnapshot struct {
	Words []string `json:"words"`
}

type userSnapshot struct {
	User         identitySnapshot `json:"user"`
	Score        int              `json:"score"`
	GuessedWords []string         `json:"guessed_words"`
}

type identitySnapshot struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type snapshot struct {
	GameID          string                 `json:"game_id"`
	GameName        string                 `json:"game_name"`
	RoundLength     int                    `json:"round_length"`
	HatWordsPerUser int                    `json:"hat_words_per_user"`
	RoundNum        int                    `json:"round_num"`
	Hat             hatSnapshot            `json:"hat"`
	Users           map[int64]userSnapshot `json:"users"`
}

// snapshot serializes the session under g.mu.
func (g *Game) snapshot() (string, error) {
	snap := snapshot{
		GameID:          g.id,
		GameName:        g.name,
		RoundLength:     int(g.roundLength / time.Second),
		HatWordsPerUser: g.wordsPerUser,
		RoundNum:        g.roundNum,
		Hat:             hatSnapshot{Words: g.hat.Words()},
		Users:           make(map[int64]userSnapshot, len(g.users)),
	}
	for uid, u := range g.users {
		snap.Users[uid] = userSnapshot{
			User:         identitySnapshot{UserID: u.Identity.ID, Name: u.Identity.Name},
			Score:        u.Score,
			GuessedWords: u.GuessedWords,
		}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Restore rebuilds a session from a snapshot string. Whatever state the
// session was in at snapshot time, it comes back in Standby; a round in
// progress is never resumable across a restart.
func Restore(state string, sender Sender, save SaveFunc, log zerolog.Logger) (*Game, error) {
	var snap snapshot
	if err := json.Unmarshal([]byte(state), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.GameID == "" {
		return nil, fmt.Errorf("snapshot without game_id")
	}
	if snap.RoundLength <= 0 || snap.HatWordsPerUser <= 0 {
		return nil, fmt.Errorf("snapshot with invalid game settings")
	}

	g := New(
		snap.GameID,
		snap.GameName,
		time.Duration(snap.RoundLength)*time.Second,
		snap.HatWordsPerUser,
		sender,
		save,
		log,
	)
	g.state = &Standby{}
	g.roundNum = snap.RoundNum
	for _, w := range snap.Hat.Words {
		g.hat.Put(w)
	}
	for uid, us := range snap.Users {
		if us.User.UserID != uid {
			return nil, fmt.Errorf("snapshot user %d keyed as %d", us.User.UserID, uid)
		}
		u := NewUser(auth.User{ID: us.User.UserID, Name: us.User.Name})
		u.Score = us.Score
		if us.GuessedWords != nil {
			u.GuessedWords = us.GuessedWords
		}
		g.users[uid] = u
	}
	return g, nil
}
