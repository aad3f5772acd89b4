package core

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventSender is one participant's outbound queue. TrySend must never block:
// implementations drop the event when the queue is full or the connection is
// gone, so a slow peer cannot stall a room's mutation path.
type EventSender interface {
	TrySend(e *Event) bool
}

// Display colors assigned to joining users.
var userColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#e67e22", "#34495e",
}

// Room is an isolated collaboration session. All state is guarded by mu and
// every mutation broadcasts its effect to the registered senders while still
// holding the lock, so peers observe actions in the exact order the room
// accepted them. Senders are non-blocking queues, no I/O happens under mu.
type Room struct {
	id        string
	password  string
	createdAt time.Time

	mu          sync.Mutex
	users       map[string]*User
	senders     map[string]EventSender
	actions     map[string]*DrawAction
	actionOrder []string
	pages       []Page
	undoStacks  map[string][]string
	// emptySince is the time the last user left, zero while occupied. The
	// registry janitor uses it to destroy abandoned rooms.
	emptySince time.Time

	logger *slog.Logger
}

func newRoom(id, password string, logger *slog.Logger) *Room {
	return &Room{
		id:        id,
		password:  password,
		createdAt: time.Now(),
		users:     make(map[string]*User),
		senders:   make(map[string]EventSender),
		actions:   make(map[string]*DrawAction),
		pages: []Page{
			{ID: uuid.NewString(), Name: "Canvas 1"},
		},
		undoStacks: make(map[string][]string),
		emptySince: time.Now(),
		logger:     logger.With(slog.String("room", id)),
	}
}

func (r *Room) ID() string { return r.id }

// Protected reports whether joining requires a password.
func (r *Room) Protected() bool { return r.password != "" }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Authorize checks the supplied password against the room's. Unprotected
// rooms admit any password.
func (r *Room) Authorize(password string) error {
	if r.password != "" && r.password != password {
		return ErrUnauthorized
	}
	return nil
}

// Join admits a user, assigns a display color, and registers the sender the
// room will broadcast to. A re-join under the same id overwrites the stale
// entry; the user's undo stack survives reconnects. The joiner receives
// room:joined with a full snapshot, peers receive room:user-joined.
func (r *Room) Join(id, name string, sender EventSender) User {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := &User{
		ID:    id,
		Name:  name,
		Color: userColors[rand.Intn(len(userColors))],
	}
	r.users[id] = u
	r.senders[id] = sender
	if _, ok := r.undoStacks[id]; !ok {
		r.undoStacks[id] = nil
	}
	r.emptySince = time.Time{}

	r.emitToLocked(id, EventRoomJoined, RoomJoinedPayload{
		RoomID: r.id,
		Self:   *u,
		State:  r.snapshotLocked(),
	})
	r.emitLocked(id, EventUserJoined, UserJoinedPayload{RoomID: r.id, User: *u})
	return *u
}

// Leave removes the user and notifies the remaining peers. The user's
// authored actions and undo stack are kept.
func (r *Room) Leave(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return false
	}
	delete(r.users, userID)
	delete(r.senders, userID)
	if len(r.users) == 0 {
		r.emptySince = time.Now()
	}
	r.emitLocked("", EventUserLeft, UserLeftPayload{RoomID: r.id, UserID: userID})
	return true
}

// Commit appends an action to the room's log. The author and timestamp are
// overwritten with trusted values; the rest of the action is stored as-is.
// Insertion order is global per room and is the single ordering authority.
// The action is broadcast to everyone except the committer, which renders
// optimistically and gets no echo.
func (r *Room) Commit(userID string, action DrawAction) (DrawAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return DrawAction{}, false
	}

	action.UserID = userID
	action.RoomID = r.id
	action.CreatedAt = time.Now().UnixMilli()
	if action.ID == "" {
		action.ID = uuid.NewString()
	}

	a := action.clone()
	// A duplicate id silently overwrites the stored action; the order log
	// still appends.
	r.actions[a.ID] = &a
	r.actionOrder = append(r.actionOrder, a.ID)

	r.emitLocked(userID, EventDrawCreated, DrawCreatedPayload{RoomID: r.id, Action: a})
	return a, true
}

// Undo soft-deletes the author's most recent non-deleted action, scanning the
// order log newest-first, and pushes it onto the author's undo stack. A user
// with nothing left to undo is a no-op. Only the author's own actions are
// eligible. The deletion is broadcast to everyone, the undoer included.
func (r *Room) Undo(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.actionOrder) - 1; i >= 0; i-- {
		a, ok := r.actions[r.actionOrder[i]]
		if !ok || a.UserID != userID || a.IsDeleted {
			continue
		}
		a.IsDeleted = true
		r.undoStacks[userID] = append(r.undoStacks[userID], a.ID)
		r.emitLocked("", EventActionDeleted, ActionDeletedPayload{
			RoomID:    r.id,
			ActionID:  a.ID,
			IsDeleted: true,
		})
		return a.ID, true
	}
	return "", false
}

// Clear soft-deletes every action on the page regardless of author and
// broadcasts a page-scoped clear to everyone, the issuer included.
func (r *Room) Clear(pageID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, a := range r.actions {
		if a.PageID == pageID && !a.IsDeleted {
			a.IsDeleted = true
			n++
		}
	}
	r.emitLocked("", EventBoardCleared, BoardClearedPayload{RoomID: r.id, PageID: pageID})
	return n
}

// Move translates each referenced non-deleted action by (dx, dy) in place.
// Unknown or deleted ids are silently skipped. Peers receive the same delta
// and apply the identical translation locally; replicas are assumed to hold
// identical pre-move geometry.
func (r *Room) Move(userID string, actionIDs []string, dx, dy float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, id := range actionIDs {
		a, ok := r.actions[id]
		if !ok || a.IsDeleted {
			continue
		}
		a.Translate(dx, dy)
		n++
	}
	r.emitLocked(userID, EventDrawMoved, DrawMovedPayload{
		RoomID:    r.id,
		ActionIDs: actionIDs,
		Dx:        dx,
		Dy:        dy,
	})
	return n
}

// CreatePage appends a page named after the new page count and broadcasts the
// full updated page list to everyone.
func (r *Room) CreatePage() Page {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Page{
		ID:   uuid.NewString(),
		Name: fmt.Sprintf("Canvas %d", len(r.pages)+1),
	}
	r.pages = append(r.pages, p)
	r.emitLocked("", EventPageUpdated, PageUpdatedPayload{RoomID: r.id, Pages: r.pagesLocked()})
	return p
}

// DeletePage removes the page and soft-deletes every action that referenced
// it, then broadcasts the full updated page list. Deleting the room's only
// page fails with ErrLastPage; an unknown page id is a silent no-op.
func (r *Room) DeletePage(pageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pages) <= 1 {
		return ErrLastPage
	}
	idx := -1
	for i, p := range r.pages {
		if p.ID == pageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	r.pages = append(r.pages[:idx], r.pages[idx+1:]...)
	for _, a := range r.actions {
		if a.PageID == pageID {
			a.IsDeleted = true
		}
	}
	r.emitLocked("", EventPageUpdated, PageUpdatedPayload{RoomID: r.id, Pages: r.pagesLocked()})
	return nil
}

// UpdateCursor stores the user's latest pointer position and forwards it to
// peers. Only the latest value is retained.
func (r *Room) UpdateCursor(userID string, pos Point, pageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return
	}
	u.Cursor = &CursorPosition{
		X:         pos.X,
		Y:         pos.Y,
		PageID:    pageID,
		UpdatedAt: time.Now().UnixMilli(),
	}
	r.emitLocked(userID, EventCursorUpdated, CursorUpdatedPayload{
		RoomID:   r.id,
		UserID:   userID,
		Position: pos,
		PageID:   pageID,
	})
}

// Sync sends the requester a full state snapshot, the reconciliation escape
// hatch for a client that suspects it has diverged from the log.
func (r *Room) Sync(userID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitToLocked(userID, EventRoomStateSync, RoomStateSyncPayload{
		RoomID: r.id,
		State:  r.snapshotLocked(),
		Reason: reason,
	})
}

// Snapshot returns a deep copy of the room's client-visible state. The
// password is never included.
func (r *Room) Snapshot() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *Room) PageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// EmptySince returns the time the room last became empty and false while it
// is occupied.
func (r *Room) EmptySince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emptySince.IsZero() {
		return time.Time{}, false
	}
	return r.emptySince, true
}

func (r *Room) snapshotLocked() RoomState {
	state := RoomState{
		ID:             r.id,
		Users:          make(map[string]User, len(r.users)),
		Actions:        make(map[string]DrawAction, len(r.actions)),
		ActionOrder:    make([]string, len(r.actionOrder)),
		Pages:          r.pagesLocked(),
		CreatedAt:      r.createdAt.UnixMilli(),
		UserUndoStacks: make(map[string][]string, len(r.undoStacks)),
	}
	for id, u := range r.users {
		state.Users[id] = *u
	}
	for id, a := range r.actions {
		state.Actions[id] = a.clone()
	}
	copy(state.ActionOrder, r.actionOrder)
	for id, stack := range r.undoStacks {
		s := make([]string, len(stack))
		copy(s, stack)
		state.UserUndoStacks[id] = s
	}
	return state
}

func (r *Room) pagesLocked() []Page {
	pages := make([]Page, len(r.pages))
	copy(pages, r.pages)
	return pages
}

// emitLocked broadcasts to every registered sender except the one named,
// pass "" to reach everyone. Callers must hold r.mu.
func (r *Room) emitLocked(except string, t string, payload interface{}) {
	e, err := NewEvent(t, payload)
	if err != nil {
		r.logger.Error(fmt.Sprintf("emit %s: %v", t, err))
		return
	}
	for id, s := range r.senders {
		if id == except {
			continue
		}
		if !s.TrySend(e) {
			r.logger.Warn(fmt.Sprintf("dropped %s for user %s: queue full", t, id))
		}
	}
}

func (r *Room) emitToLocked(userID string, t string, payload interface{}) {
	s, ok := r.senders[userID]
	if !ok {
		return
	}
	e, err := NewEvent(t, payload)
	if err != nil {
		r.logger.Error(fmt.Sprintf("emit %s: %v", t, err))
		return
	}
	if !s.TrySend(e) {
		r.logger.Warn(fmt.Sprintf("dropped %s for user %s: queue full", t, userID))
	}
}
