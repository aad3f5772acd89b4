package core

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// recordingSender collects everything a room broadcasts to one participant.
type recordingSender struct {
	mu     sync.Mutex
	events []*Event
	full   bool
}

func (s *recordingSender) TrySend(e *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.events = append(s.events, e)
	return true
}

func (s *recordingSender) byType(t string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSender) all() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

func decodePayload[T any](t *testing.T, e *Event) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	return payload
}

func freehand(id, pageID string, points ...Point) DrawAction {
	return DrawAction{
		ID:          id,
		PageID:      pageID,
		Type:        ActionFreehand,
		Color:       "#e74c3c",
		StrokeWidth: 2,
		BrushType:   BrushPencil,
		Points:      points,
	}
}

func shape(id, pageID string, typ ActionType, start, end Point) DrawAction {
	return DrawAction{
		ID:          id,
		PageID:      pageID,
		Type:        typ,
		Color:       "#3498db",
		StrokeWidth: 3,
		Start:       &start,
		End:         &end,
	}
}

// newTestRoom creates a room with the given users already joined, returning
// their recorded streams keyed by user id. Join broadcasts are part of the
// recorded streams.
func newTestRoom(t *testing.T, id string, userIDs ...string) (*Room, map[string]*recordingSender) {
	t.Helper()
	room := newRoom(id, "", testLogger)
	senders := make(map[string]*recordingSender, len(userIDs))
	for _, uid := range userIDs {
		s := &recordingSender{}
		senders[uid] = s
		room.Join(uid, "user "+uid, s)
	}
	return room, senders
}
