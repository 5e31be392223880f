// Package server exposes the game over three websocket endpoints:
// /ws/new_game creates a session, /ws/game/{id} serves a player, and
// /ws/admin/{id} serves the host channel. Sessions not found in the
// registry are revived lazily from the snapshot store.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kanavis/onliapa/internal/auth"
	"github.com/kanavis/onliapa/internal/game"
	"github.com/kanavis/onliapa/internal/metrics"
	"github.com/kanavis/onliapa/internal/persist"
	"github.com/kanavis/onliapa/internal/protocol"
	"github.com/kanavis/onliapa/internal/room"
)

type Server struct {
	registry *Registry
	gateway  persist.Gateway
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New builds a Server. gateway may be nil; sessions then live only in
// memory and die with the process.
func New(registry *Registry, gateway persist.Gateway, log zerolog.Logger) *Server {
	return &Server{
		registry: registry,
		gateway:  gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Mount attaches the websocket routes to the router. Any other path
// under /ws upgrades and answers with a wrong-path error so clients see
// a protocol-level reply instead of a bare HTTP 404.
func (s *Server) Mount(r chi.Router) {
	r.Get("/ws/new_game", s.handleNewGame)
	r.Get("/ws/game/{gameID:[a-z0-9]{8}}", s.handleGame)
	r.Get("/ws/admin/{gameID:[a-z0-9]{8}}", s.handleAdmin)
	r.HandleFunc("/ws/*", s.handleWrongPath)
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*room.Conn, bool) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return nil, false
	}
	return room.NewConn(ws), true
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close(websocket.CloseNormalClosure, "")

	frame, err := conn.Read()
	if err != nil {
		s.log.Debug().Err(err).Msg("new-game connection dropped before request")
		return
	}
	tag, raw, err := protocol.Decode(frame)
	if err != nil {
		_ = conn.Send(protocol.Err(protocol.ErrWrongData, err.Error(), protocol.Trunc(frame, 200)))
		return
	}
	if tag != protocol.TagNewGame {
		_ = conn.Send(protocol.Err(protocol.ErrWrongData, "expected a new-game request", tag))
		return
	}
	var req protocol.NewGameRequest
	if err := protocol.DecodeInto(raw, &req); err != nil {
		_ = conn.Send(protocol.Err(protocol.ErrWrongData, err.Error(), nil))
		return
	}

	sess := s.createSession(req)
	metrics.GamesCreated.Inc()
	s.log.Info().Str("game_id", sess.Game.ID()).
		Str("game_name", sess.Game.Name()).Msg("game created")
	_ = conn.Send(protocol.MustMsg(protocol.TagNewGameID, sess.Game.ID()))
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close(websocket.CloseNormalClosure, "")

	gameID := chi.URLParam(r, "gameID")
	sess := s.session(r.Context(), gameID)
	if sess == nil {
		_ = conn.Send(protocol.Err(protocol.ErrWrongGame, "no such game", gameID))
		return
	}
	user, ok := s.authenticate(conn)
	if !ok {
		return
	}
	sess.Room.ServeUser(r.Context(), *user, conn)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close(websocket.CloseNormalClosure, "")

	gameID := chi.URLParam(r, "gameID")
	sess := s.session(r.Context(), gameID)
	if sess == nil {
		_ = conn.Send(protocol.Err(protocol.ErrWrongGame, "no such game", gameID))
		return
	}
	sess.Room.ServeAdmin(r.Context(), conn)
}

func (s *Server) handleWrongPath(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	_ = conn.Send(protocol.Err(protocol.ErrWrongPath, "no such endpoint", r.URL.Path))
	_ = conn.Close(websocket.CloseNormalClosure, "")
}

// authenticate runs the first-frame handshake on a player connection:
// a user-auth request in, an auth-ok reply out. The identity is the
// checksum of the display name, so reconnecting under the same name
// resumes the same player.
func (s *Server) authenticate(c *room.Conn) (*auth.User, bool) {
	frame, err := c.Read()
	if err != nil {
		s.log.Debug().Err(err).Str("conn_id", c.ID()).Msg("connection dropped before auth")
		return nil, false
	}
	tag, raw, err := protocol.Decode(frame)
	if err != nil {
		_ = c.Send(protocol.Err(protocol.ErrAuth, err.Error(), protocol.Trunc(frame, 200)))
		return nil, false
	}
	if tag != protocol.TagUserAuth {
		_ = c.Send(protocol.Err(protocol.ErrAuth, "expected a user-auth request", tag))
		return nil, false
	}
	var req protocol.AuthRequest
	if err := protocol.DecodeInto(raw, &req); err != nil {
		_ = c.Send(protocol.Err(protocol.ErrAuth, err.Error(), nil))
		return nil, false
	}
	if req.UserName == auth.ReservedAdminName {
		_ = c.Send(protocol.Err(protocol.ErrAuth, "reserved user name", req.UserName))
		return nil, false
	}
	u := auth.FromName(req.UserName)
	reply := protocol.MustMsg(protocol.TagAuthOK, protocol.AuthUser{UserName: u.Name, UserID: u.ID})
	if err := c.Send(reply); err != nil {
		return nil, false
	}
	return &u, true
}

// createSession allocates an id and registers a fresh session. The loop
// re-rolls the id on the off chance another creator claimed it between
// allocation and registration.
func (s *Server) createSession(req protocol.NewGameRequest) *Session {
	for {
		gameID := s.registry.NewGameID()
		sess := s.buildSession(gameID, req.GameName,
			time.Duration(req.RoundLength)*time.Second, req.HatWordsPerUser)
		if s.registry.PutIfAbsent(gameID, sess) == sess {
			return sess
		}
	}
}

func (s *Server) buildSession(gameID, name string, roundLength time.Duration, wordsPerUser int) *Session {
	bus := room.NewBus(s.log)
	rm := room.New(gameID, bus, s.log)
	g := game.New(gameID, name, roundLength, wordsPerUser, rm, s.saveFunc(gameID), s.log)
	g.Register(bus)
	return &Session{Game: g, Room: rm}
}

func (s *Server) saveFunc(gameID string) game.SaveFunc {
	if s.gateway == nil {
		return nil
	}
	return func(ctx context.Context, state string) error {
		return s.gateway.Save(ctx, gameID, state)
	}
}

// session resolves a game id to a live session, reviving it from the
// snapshot store when the registry has no entry. An unreadable snapshot
// is deleted and treated as missing.
func (s *Server) session(ctx context.Context, gameID string) *Session {
	if sess := s.registry.Get(gameID); sess != nil {
		return sess
	}
	if s.gateway == nil {
		return nil
	}
	state, err := s.gateway.Load(ctx, gameID)
	if errors.Is(err, persist.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("game_id", gameID).Msg("snapshot load failed")
		return nil
	}

	bus := room.NewBus(s.log)
	rm := room.New(gameID, bus, s.log)
	g, err := game.Restore(state, rm, s.saveFunc(gameID), s.log)
	if err != nil {
		s.log.Error().Err(err).Str("game_id", gameID).Msg("dropping unreadable snapshot")
		_ = s.gateway.Delete(ctx, gameID)
		return nil
	}
	g.Register(bus)
	metrics.GamesRevived.Inc()
	s.log.Info().Str("game_id", gameID).Msg("game revived from snapshot")
	return s.registry.PutIfAbsent(gameID, &Session{Game: g, Room: rm})
}
