// Package room owns the connection side of one game session: the event
// bus that decouples socket I/O from game logic, and the registry that
// fans frames out to players and the admin channel.
package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kanavis/onliapa/internal/auth"
	"github.com/kanavis/onliapa/internal/protocol"
)

// Event names the connection lifecycle points the game reacts to.
type Event string

const (
	EventJoin       Event = "join"
	EventLeave      Event = "leave"
	EventAdminJoin  Event = "admin-join"
	EventAdminLeave Event = "admin-leave"
)

// JoinData accompanies EventJoin and EventAdminJoin. User is nil for the
// admin channel.
type JoinData struct {
	User *auth.User
	Conn *Conn
}

// LeaveData accompanies EventLeave.
type LeaveData struct {
	User auth.User
}

// Origin identifies the connection a message arrived on. User is nil for
// frames from the admin channel.
type Origin struct {
	User *auth.User
	Conn *Conn
}

type messageSub struct {
	decode func(json.RawMessage) (any, error)
	handle func(context.Context, any, Origin)
}

// Bus is the per-session dispatch table. It is populated once at session
// construction and never mutated afterwards; registration from two
// places for the same tag is a programming error and panics.
type Bus struct {
	log      zerolog.Logger
	handlers map[Event][]func(context.Context, any)
	messages map[string]messageSub
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:      log,
		handlers: make(map[Event][]func(context.Context, any)),
		messages: make(map[string]messageSub),
	}
}

// Subscribe registers a lifecycle event handler. Handlers for one event
// run sequentially in registration order.
func (b *Bus) Subscribe(event Event, handle func(context.Context, any)) {
	b.handlers[event] = append(b.handlers[event], handle)
}

// SubscribeMessage registers the handler for one inbound message tag.
// The raw payload is decoded and validated as T before the handler runs.
func SubscribeMessage[T any, P interface {
	*T
	protocol.Validatable
}](b *Bus, tag string, handle func(context.Context, *T, Origin)) {
	if _, dup := b.messages[tag]; dup {
		panic(fmt.Sprintf("room: re-subscribing to message %s", tag))
	}
	b.messages[tag] = messageSub{
		decode: func(raw json.RawMessage) (any, error) {
			msg := P(new(T))
			if err := protocol.DecodeInto(raw, msg); err != nil {
				return nil, err
			}
			return (*T)(msg), nil
		},
		handle: func(ctx context.Context, msg any, origin Origin) {
			handle(ctx, msg.(*T), origin)
		},
	}
}

// Emit runs every handler subscribed to event, in order, to completion.
func (b *Bus) Emit(ctx context.Context, event Event, data any) {
	for _, handle := range b.handlers[event] {
		handle(ctx, data)
	}
}

// Dispatch routes one decoded frame to its tag handler. Unknown tags and
// payloads that fail validation are logged and dropped; neither is a
// fault the remote peer hears about.
func (b *Bus) Dispatch(ctx context.Context, tag string, raw json.RawMessage, origin Origin) {
	sub, ok := b.messages[tag]
	if !ok {
		b.log.Warn().Str("tag", tag).Msg("message without subscription")
		return
	}
	msg, err := sub.decode(raw)
	if err != nil {
		b.log.Warn().Str("tag", tag).Err(err).Msg("failed to parse message")
		return
	}
	sub.handle(ctx, msg, origin)
}
