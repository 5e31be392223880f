package room

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kanavis/onliapa/internal/auth"
	"github.com/kanavis/onliapa/internal/metrics"
	"github.com/kanavis/onliapa/internal/protocol"
)

// adminTagPrefix namespaces frames arriving on the admin channel. A
// player frame already carrying the prefix is dropped, so admin handlers
// are reachable only through the admin endpoint.
const adminTagPrefix = "admin-"

// Room owns the live connections of one game session. A user identity
// may hold several connections at once (multiple tabs); sends are
// best-effort per connection.
type Room struct {
	gameID string
	bus    *Bus
	log    zerolog.Logger

	mu        sync.Mutex
	users     map[int64]map[*Conn]struct{}
	userNames map[int64]string
	admins    map[*Conn]struct{}
}

func New(gameID string, bus *Bus, log zerolog.Logger) *Room {
	return &Room{
		gameID:    gameID,
		bus:       bus,
		log:       log.With().Str("game_id", gameID).Logger(),
		users:     make(map[int64]map[*Conn]struct{}),
		userNames: make(map[int64]string),
		admins:    make(map[*Conn]struct{}),
	}
}

func (r *Room) Bus() *Bus { return r.bus }

// ServeUser runs the frame loop for one authenticated player connection.
// It returns when the connection closes.
func (r *Room) ServeUser(ctx context.Context, user auth.User, c *Conn) {
	log := r.log.With().
		Str("conn_id", c.ID()).
		Int64("user_id", user.ID).
		Str("user_name", user.Name).
		Logger()

	r.mu.Lock()
	if r.users[user.ID] == nil {
		r.users[user.ID] = make(map[*Conn]struct{})
	}
	r.users[user.ID][c] = struct{}{}
	r.userNames[user.ID] = user.Name
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	r.bus.Emit(ctx, EventJoin, JoinData{User: &user, Conn: c})

	defer func() {
		r.mu.Lock()
		delete(r.users[user.ID], c)
		if len(r.users[user.ID]) == 0 {
			delete(r.users, user.ID)
		}
		r.mu.Unlock()
		r.bus.Emit(ctx, EventLeave, LeaveData{User: user})
		log.Info().Msg("user connection closed")
	}()

	for {
		frame, err := c.Read()
		if err != nil {
			return
		}
		tag, raw, err := protocol.Decode(frame)
		if err != nil {
			var remote *protocol.RemoteError
			if errors.As(err, &remote) {
				log.Info().Err(remote).Msg("remote error from user")
				continue
			}
			metrics.ProtocolErrors.Inc()
			log.Info().Err(err).Str("frame", protocol.Trunc(frame, 100)).
				Msg("unreadable packet from user")
			continue
		}
		if strings.HasPrefix(tag, adminTagPrefix) {
			log.Warn().Str("tag", tag).Msg("admin tag from player connection")
			continue
		}
		metrics.FramesReceived.Inc()
		log.Debug().Str("tag", tag).Msg("received message")
		r.bus.Dispatch(ctx, tag, raw, Origin{User: &user, Conn: c})
	}
}

// ServeAdmin runs the frame loop for one admin connection. Admin frames
// are dispatched with their tag prefixed by "admin-".
func (r *Room) ServeAdmin(ctx context.Context, c *Conn) {
	log := r.log.With().Str("conn_id", c.ID()).Logger()

	r.mu.Lock()
	r.admins[c] = struct{}{}
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	r.bus.Emit(ctx, EventAdminJoin, JoinData{Conn: c})

	defer func() {
		r.mu.Lock()
		delete(r.admins, c)
		r.mu.Unlock()
		r.bus.Emit(ctx, EventAdminLeave, nil)
		log.Info().Msg("admin connection closed")
	}()

	for {
		frame, err := c.Read()
		if err != nil {
			return
		}
		tag, raw, err := protocol.Decode(frame)
		if err != nil {
			var remote *protocol.RemoteError
			if errors.As(err, &remote) {
				log.Info().Err(remote).Msg("remote error from admin")
				continue
			}
			metrics.ProtocolErrors.Inc()
			log.Info().Err(err).Str("frame", protocol.Trunc(frame, 100)).
				Msg("unreadable packet from admin")
			continue
		}
		metrics.FramesReceived.Inc()
		log.Debug().Str("tag", tag).Msg("received admin message")
		r.bus.Dispatch(ctx, adminTagPrefix+tag, raw, Origin{Conn: c})
	}
}

// SendUser delivers a frame to every connection of one user, or to only
// if given. It reports whether at least one send went through, which is
// how callers detect an unreachable participant.
func (r *Room) SendUser(userID int64, frame []byte, only *Conn) bool {
	var conns []*Conn
	if only != nil {
		conns = []*Conn{only}
	} else {
		r.mu.Lock()
		for c := range r.users[userID] {
			conns = append(conns, c)
		}
		r.mu.Unlock()
	}
	return r.sendAll(conns, frame)
}

// SendAdmin delivers a frame to the admin channel, or to only if given.
func (r *Room) SendAdmin(frame []byte, only *Conn) bool {
	var conns []*Conn
	if only != nil {
		conns = []*Conn{only}
	} else {
		r.mu.Lock()
		for c := range r.admins {
			conns = append(conns, c)
		}
		r.mu.Unlock()
	}
	return r.sendAll(conns, frame)
}

// Broadcast delivers a frame to every known connection. Broken
// connections are skipped; delivery is best effort.
func (r *Room) Broadcast(frame []byte, withAdmin bool) {
	r.mu.Lock()
	var conns []*Conn
	for _, set := range r.users {
		for c := range set {
			conns = append(conns, c)
		}
	}
	if withAdmin {
		for c := range r.admins {
			conns = append(conns, c)
		}
	}
	r.mu.Unlock()

	metrics.Broadcasts.Inc()
	r.sendAll(conns, frame)
}

func (r *Room) sendAll(conns []*Conn, frame []byte) bool {
	sent := 0
	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			r.log.Debug().Str("conn_id", c.ID()).Err(err).
				Msg("writing on broken socket")
			continue
		}
		sent++
	}
	return sent > 0
}

// Kick sends a terminal kick frame to every connection of the user and
// force-closes them. Registry cleanup happens in the serve loops.
func (r *Room) Kick(userID int64) {
	r.mu.Lock()
	var conns []*Conn
	for c := range r.users[userID] {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	r.log.Info().Int64("user_id", userID).Msg("kicking user")
	frame := protocol.Err(protocol.TagKick, "", nil)
	for _, c := range conns {
		_ = c.Send(frame)
		_ = c.Close(websocket.CloseNormalClosure, "kick")
	}
}

// UserName reports the last known display name for an identity.
func (r *Room) UserName(userID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userNames[userID]
}
