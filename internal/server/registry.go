package server

import (
	"math/rand"
	"sync"

	"github.com/kanavis/onliapa/internal/game"
	"github.com/kanavis/onliapa/internal/room"
)

const (
	gameIDLetters = "abcdefghijklmnopqrstuvwxyz0123456789"
	gameIDLen     = 8
)

// Session is one live game: its state machine plus its room.
type Session struct {
	Game *game.Game
	Room *room.Room
}

// Registry owns the mapping from game id to live session. It is created
// at process start and handed to the connection handlers; its lifecycle
// is the process's lifecycle.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(gameID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[gameID]
}

// PutIfAbsent stores the session unless the id is already taken and
// returns the winner. Two connections reviving the same game race here;
// the loser's session is discarded before anyone joined it.
func (r *Registry) PutIfAbsent(gameID string, sess *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[gameID]; ok {
		return existing
	}
	r.sessions[gameID] = sess
	return sess
}

// NewGameID reserves a fresh 8-character game id.
func (r *Registry) NewGameID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		b := make([]byte, gameIDLen)
		for i := range b {
			b[i] = gameIDLetters[rand.Intn(len(gameIDLetters))]
		}
		id := string(b)
		if _, taken := r.sessions[id]; !taken {
			return id
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
