// Package game implements the session state machine of one hat game:
// the HatFill -> Standby -> Round -> Standby lifecycle, the entities it
// owns (hat, users, round timer) and the snapshot serializer.
package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kanavis/onliapa/internal/metrics"
	"github.com/kanavis/onliapa/internal/protocol"
	"github.com/kanavis/onliapa/internal/room"
)

// Sender is the slice of the room contract the state machine drives.
// Implemented by *room.Room.
type Sender interface {
	SendUser(userID int64, frame []byte, only *room.Conn) bool
	SendAdmin(frame []byte, only *room.Conn) bool
	Broadcast(frame []byte, withAdmin bool)
	Kick(userID int64)
}

// SaveFunc hands a snapshot to the persistence gateway. Failures are
// logged, never surfaced: the in-memory transition is already committed.
type SaveFunc func(ctx context.Context, state string) error

// Game is the aggregate root of one session. All handlers run under one
// mutex, so session state mutates one event at a time; independent
// sessions run fully in parallel.
type Game struct {
	mu sync.Mutex

	id           string
	name         string
	roundLength  time.Duration
	wordsPerUser int

	roundNum int
	// roundGen invalidates detached round timers: every transition out
	// of Round bumps it, and a timer only acts if its captured
	// generation still matches.
	roundGen uint64

	hat   *Hat
	users map[int64]*User
	state State

	sender Sender
	save   SaveFunc
	log    zerolog.Logger
}

func New(
	id, name string,
	roundLength time.Duration,
	wordsPerUser int,
	sender Sender,
	save SaveFunc,
	log zerolog.Logger,
) *Game {
	return &Game{
		id:           id,
		name:         name,
		roundLength:  roundLength,
		wordsPerUser: wordsPerUser,
		hat:          NewHat(),
		users:        make(map[int64]*User),
		state:        NewHatFill(),
		sender:       sender,
		save:         save,
		log:          log.With().Str("game_id", id).Logger(),
	}
}

func (g *Game) ID() string   { return g.id }
func (g *Game) Name() string { return g.name }

// Register wires every handler into the session's bus. Called once at
// session construction; the table is never mutated afterwards.
func (g *Game) Register(bus *room.Bus) {
	bus.Subscribe(room.EventJoin, g.onJoin)
	bus.Subscribe(room.EventAdminJoin, g.onAdminJoin)
	bus.Subscribe(room.EventLeave, g.onLeave)
	bus.Subscribe(room.EventAdminLeave, g.onAdminLeave)
	room.SubscribeMessage(bus, protocol.TagHatAddWords, g.onHatAddWords)
	room.SubscribeMessage(bus, protocol.TagWordGuessed, g.onWordGuessed)
	room.SubscribeMessage(bus, protocol.TagAdminHatComplete, g.onAdminHatComplete)
	room.SubscribeMessage(bus, protocol.TagAdminStartRound, g.onAdminStartRound)
	room.SubscribeMessage(bus, protocol.TagAdminKickUser, g.onAdminKickUser)
}

// reject replies to the originating connection only, never broadcasts,
// and mutates nothing.
func (g *Game) reject(origin room.Origin, tag, detail string) {
	frame := protocol.Err(tag, detail, nil)
	if origin.User != nil {
		g.sender.SendUser(origin.User.ID, frame, origin.Conn)
	} else {
		g.sender.SendAdmin(frame, origin.Conn)
	}
}

func (g *Game) onJoin(ctx context.Context, data any) {
	join := data.(room.JoinData)
	g.mu.Lock()
	defer g.mu.Unlock()

	u, known := g.users[join.User.ID]
	if !known {
		u = NewUser(*join.User)
		g.users[u.Identity.ID] = u
		g.log.Info().Int64("user_id", u.Identity.ID).
			Str("user_name", u.Identity.Name).Msg("user joined")
		g.sender.Broadcast(protocol.MustMsg(protocol.TagNewUser, u.Message()), true)
	}

	// Bring the joining connection up to date.
	g.sender.SendUser(u.Identity.ID, g.userStateFrame(u), join.Conn)
	g.sender.SendUser(u.Identity.ID, g.gameStateFrame("", nil), join.Conn)
}

func (g *Game) onAdminJoin(ctx context.Context, data any) {
	join := data.(room.JoinData)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sender.SendAdmin(g.gameStateFrame("", nil), join.Conn)
}

func (g *Game) onLeave(ctx context.Context, data any) {
	leave := data.(room.LeaveData)
	g.log.Info().Int64("user_id", leave.User.ID).Msg("user connection left")
}

func (g *Game) onAdminLeave(ctx context.Context, data any) {
	g.log.Info().Msg("admin connection left")
}

func (g *Game) onHatAddWords(ctx context.Context, msg *protocol.HatAddWords, origin room.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fill, ok := g.state.(*HatFill)
	if !ok {
		g.reject(origin, protocol.ErrWrongState,
			fmt.Sprintf("current state is %s", g.state.Name()))
		return
	}
	if len(msg.Words) != g.wordsPerUser {
		g.reject(origin, protocol.ErrWrongData,
			fmt.Sprintf("wrong words length, %d expected", g.wordsPerUser))
		return
	}

	for _, w := range msg.Words {
		g.hat.Put(w)
	}
	uid := origin.User.ID
	fill.WordCounts[uid] += len(msg.Words)
	fill.Contributed[uid] = struct{}{}
	g.log.Info().Int64("user_id", uid).Msg("user put words to hat")

	reason := ""
	if g.hatCovered(fill) {
		// Everyone contributed: offer readiness to the admin.
		reason = "hat-full"
	}
	g.sender.Broadcast(g.gameStateFrame(reason, nil), true)
}

func (g *Game) hatCovered(fill *HatFill) bool {
	for uid := range g.users {
		if _, ok := fill.Contributed[uid]; !ok {
			return false
		}
	}
	return true
}

func (g *Game) onAdminHatComplete(ctx context.Context, msg *protocol.HatFillEnd, origin room.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fill, ok := g.state.(*HatFill)
	if !ok {
		g.reject(origin, protocol.ErrWrongState,
			fmt.Sprintf("current state is %s", g.state.Name()))
		return
	}
	if len(g.users) < 2 {
		g.reject(origin, protocol.ErrUsersNotEnough, "at least 2 users required")
		return
	}
	if msg.IgnoreNotFull {
		if len(fill.Contributed) == 0 {
			g.reject(origin, protocol.ErrHatNotFull, "nobody contributed yet")
			return
		}
	} else if !g.hatCovered(fill) {
		g.reject(origin, protocol.ErrHatNotFull, "not every user contributed")
		return
	}

	g.state = &Standby{}
	g.log.Info().Msg("hat fill complete")
	g.persist(ctx)
	g.sender.Broadcast(g.gameStateFrame("hat-complete", nil), true)
}

func (g *Game) onAdminStartRound(ctx context.Context, msg *protocol.AdminStartRound, origin room.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.state.(*Standby); !ok {
		g.reject(origin, protocol.ErrWrongState,
			fmt.Sprintf("current state is %s", g.state.Name()))
		return
	}
	asking, ok := g.users[msg.UserIDFrom]
	if !ok {
		g.reject(origin, protocol.ErrNoSuchUser,
			fmt.Sprintf("no user %d", msg.UserIDFrom))
		return
	}
	answering, ok := g.users[msg.UserIDTo]
	if !ok {
		g.reject(origin, protocol.ErrNoSuchUser,
			fmt.Sprintf("no user %d", msg.UserIDTo))
		return
	}
	word, ok := g.hat.Draw()
	if !ok {
		g.reject(origin, protocol.ErrHatEmpty, "the hat is empty")
		return
	}

	prior := g.state
	timer := NewTimer(time.Now(), g.roundLength)
	g.state = &Round{
		AskingID:    asking.Identity.ID,
		AnsweringID: answering.Identity.ID,
		Word:        word,
		Timer:       timer,
		Guessed:     []string{},
	}

	// Both participant sends must land before the round commits. If
	// either participant is unreachable the whole transition rolls back
	// bit for bit: prior state, prior sub-states, round counter intact.
	answering.State = &UserAnswering{Timer: timer, PartnerID: asking.Identity.ID}
	if !g.sendUserState(answering) {
		g.abortRoundStart(origin, prior, asking, answering, answering.Identity.Name)
		return
	}
	asking.State = &UserAsking{Timer: timer, Word: word, PartnerID: answering.Identity.ID}
	if !g.sendUserState(asking) {
		g.abortRoundStart(origin, prior, asking, answering, asking.Identity.Name)
		return
	}

	g.roundNum++
	g.roundGen++
	gen := g.roundGen
	time.AfterFunc(g.roundLength, func() { g.onRoundTimer(gen) })

	g.log.Info().Int("round", g.roundNum).
		Int64("asking", asking.Identity.ID).
		Int64("answering", answering.Identity.ID).
		Msg("round started")
	g.sender.Broadcast(g.gameStateFrame("round-start", nil), true)
}

func (g *Game) abortRoundStart(origin room.Origin, prior State, asking, answering *User, who string) {
	g.log.Warn().Str("user_name", who).Msg("aborting round start, participant unreachable")
	g.reject(origin, protocol.ErrUnavailableUser, who)
	asking.State = &UserStandby{}
	answering.State = &UserStandby{}
	g.state = prior
	g.sender.Broadcast(g.gameStateFrame("", nil), true)
}

func (g *Game) onWordGuessed(ctx context.Context, _ *protocol.Empty, origin room.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()

	round, ok := g.state.(*Round)
	if !ok {
		g.reject(origin, protocol.ErrWrongState,
			fmt.Sprintf("current state is %s", g.state.Name()))
		return
	}
	if origin.User.ID != round.AskingID {
		g.reject(origin, protocol.ErrWrongData, "this user is not asking")
		return
	}

	asking := g.users[round.AskingID]
	answering := g.users[round.AnsweringID]
	guessed := round.Word

	answering.AddPoint()
	answering.GuessedWords = append(answering.GuessedWords, guessed)
	round.Guessed = append(round.Guessed, guessed)
	g.hat.Remove(guessed)
	g.log.Info().Int64("user_id", answering.Identity.ID).
		Str("word", guessed).Msg("word guessed")

	if g.hat.Len() == 0 {
		g.stopRound(ctx, "out-of-words")
		return
	}

	next, _ := g.hat.Draw()
	round.Word = next
	asking.State.(*UserAsking).Word = next
	g.sendUserState(asking)

	appendix := protocol.GuessAppendix{User: answering.Message(), Word: guessed}
	g.sender.Broadcast(g.gameStateFrame("user-guessed", appendix), true)
}

func (g *Game) onAdminKickUser(ctx context.Context, msg *protocol.UserID, origin room.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, ok := g.users[msg.ID]
	if !ok {
		g.reject(origin, protocol.ErrNoSuchUser, fmt.Sprintf("no user %d", msg.ID))
		return
	}

	switch st := g.state.(type) {
	case *Round:
		if msg.ID == st.AskingID || msg.ID == st.AnsweringID {
			g.stopRound(ctx, "kicked user")
		}
	case *HatFill:
		delete(st.WordCounts, msg.ID)
		delete(st.Contributed, msg.ID)
	}

	delete(g.users, msg.ID)
	g.sender.Kick(msg.ID)
	g.log.Info().Int64("user_id", msg.ID).
		Str("user_name", u.Identity.Name).Msg("user removed by admin")

	g.sender.Broadcast(
		protocol.MustMsg(protocol.TagRemoveUser, protocol.RemoveUser{UserID: msg.ID}),
		true,
	)
	g.sender.Broadcast(g.gameStateFrame("", nil), true)
}

// onRoundTimer fires when the round length elapses. A stale generation
// means the round already ended by another path; a matching generation
// outside Round cannot happen and is an internal fault.
func (g *Game) onRoundTimer(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gen != g.roundGen {
		g.log.Debug().Uint64("gen", gen).Msg("stale round timer")
		return
	}
	if _, ok := g.state.(*Round); !ok {
		g.log.Error().Str("state", g.state.Name()).
			Msg("round timer fired with live generation outside round")
		panic("game: round timer fired outside round")
	}
	g.log.Info().Int("round", g.roundNum).Msg("round timed out")
	g.stopRound(context.Background(), "timeout")
}

// stopRound is the shared tail of timeout, out-of-words and kick: back
// to Standby, participants reset and notified, snapshot persisted.
// Callers hold g.mu and guarantee the session is in Round.
func (g *Game) stopRound(ctx context.Context, cause string) {
	round := g.state.(*Round)
	g.state = &Standby{}
	g.roundGen++

	for _, uid := range []int64{round.AskingID, round.AnsweringID} {
		if u, ok := g.users[uid]; ok {
			u.State = &UserStandby{}
			g.sendUserState(u)
		}
	}

	g.log.Info().Int("round", g.roundNum).Str("cause", cause).Msg("round finished")
	g.sender.Broadcast(g.gameStateFrame("round-finished", cause), true)
	g.persist(ctx)
}

// persist snapshots the session and hands it to the gateway, plus a
// state-save frame to the admin channel. Best-effort durability: a save
// failure never rolls back the committed in-memory transition.
func (g *Game) persist(ctx context.Context) {
	snap, err := g.snapshot()
	if err != nil {
		g.log.Error().Err(err).Msg("snapshot serialization failed")
		return
	}
	g.sender.SendAdmin(
		protocol.MustMsg(protocol.TagStateSave, protocol.StateSnapshot{State: snap}),
		nil,
	)
	if g.save == nil {
		return
	}
	if err := g.save(ctx, snap); err != nil {
		metrics.SnapshotErrors.Inc()
		g.log.Error().Err(err).Msg("snapshot save failed")
		return
	}
	metrics.SnapshotSaves.Inc()
}

func (g *Game) sendUserState(u *User) bool {
	return g.sender.SendUser(u.Identity.ID, g.userStateFrame(u), nil)
}

func (g *Game) userStateFrame(u *User) []byte {
	msg := protocol.UserState{StateName: "standby"}
	switch st := u.State.(type) {
	case *UserAsking:
		msg.StateName = "asking"
		msg.StateAsking = &protocol.UserStateAsking{
			TimeLeft: st.Timer.SecondsLeft(),
			Word:     st.Word,
			Other:    g.partnerMessage(st.PartnerID),
		}
	case *UserAnswering:
		msg.StateName = "answering"
		msg.StateAnswering = &protocol.UserStateAnswering{
			TimeLeft: st.Timer.SecondsLeft(),
			Other:    g.partnerMessage(st.PartnerID),
		}
	}
	return protocol.MustMsg(protocol.TagUserState, msg)
}

func (g *Game) partnerMessage(userID int64) protocol.User {
	if p, ok := g.users[userID]; ok {
		return p.Message()
	}
	return protocol.User{UserID: userID}
}

func (g *Game) gameStateFrame(reason string, appendix any) []byte {
	msg := protocol.GameState{
		GameInfo: protocol.GameInfo{
			GameID:          g.id,
			GameName:        g.name,
			RoundLength:     int(g.roundLength / time.Second),
			HatWordsPerUser: g.wordsPerUser,
			RoundNum:        g.roundNum,
			HatWordsLeft:    g.hat.Len(),
		},
		StateName: g.state.Name(),
		Users:     g.userMessages(),
		Reason:    reason,
		Appendix:  appendix,
	}
	switch st := g.state.(type) {
	case *HatFill:
		ids := make([]int64, 0, len(st.Contributed))
		for uid := range st.Contributed {
			ids = append(ids, uid)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		msg.StateHatFill = &protocol.StateHatFill{Users: ids}
	case *Round:
		msg.StateRound = &protocol.StateRound{
			TimeLeft:     st.Timer.SecondsLeft(),
			Asking:       g.partnerMessage(st.AskingID),
			Answering:    g.partnerMessage(st.AnsweringID),
			GuessedWords: st.Guessed,
		}
	}
	return protocol.MustMsg(protocol.TagGameState, msg)
}

func (g *Game) userMessages() []protocol.User {
	out := make([]protocol.User, 0, len(g.users))
	for _, u := range g.users {
		out = append(out, u.Message())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
