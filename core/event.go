package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Event is the wire envelope for every websocket message, in both directions.
// Sender carries the dispatching connection's user id; it is attached by the
// server on decode and never read from the wire.
type Event struct {
	Sender  string          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Sender: %s, Type: %s, Payload.Size: %d}", e.Sender, e.Type, len(e.Payload))
}

// NewEvent marshals payload into an event envelope of the given type.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// EventTransport is the outbound side the router emits through and the
// inbound stream it consumes.
type EventTransport interface {
	SendTo(e *Event, userID string)
	Receive() <-chan *Event
}

type EventHandler func(context.Context, *Event) error

// EventRouter maps inbound event types to handlers. Each event is dispatched
// on its own goroutine; per-room ordering is enforced by the room lock, not
// here.
type EventRouter struct {
	listeners map[string]EventHandler
	ctx       context.Context
	transport EventTransport
	logger    *slog.Logger
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		ctx:       ctx,
		transport: transport,
		logger:    logger,
	}
}

// Listen starts consuming the transport's inbound stream until the router's
// context is cancelled.
func (er *EventRouter) Listen() {
	go func() {
		for {
			select {
			case e := <-er.transport.Receive():
				er.logger.Debug(fmt.Sprintf("received: %v", e))
				handler, ok := er.listeners[e.Type]
				if !ok {
					er.logger.Warn(fmt.Sprintf("no handler for event type %q", e.Type))
					continue
				}
				go func() {
					if err := handler(er.ctx, e); err != nil {
						er.logger.Error(fmt.Sprintf("%s handler: %s", e.Type, err))
					}
				}()
			case <-er.ctx.Done():
				return
			}
		}
	}()
}

func (er *EventRouter) On(eventType string, handler EventHandler) {
	er.listeners[eventType] = handler
}

// EmitTo sends an event to a single connected user.
func (er *EventRouter) EmitTo(t string, payload interface{}, userID string) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	er.transport.SendTo(e, userID)
	return nil
}
