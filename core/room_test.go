package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinSendsSnapshotToJoinerAndDeltaToPeers(t *testing.T) {
	room := newRoom("r1", "", testLogger)
	alice := &recordingSender{}
	room.Join("alice", "Alice", alice)

	joined := alice.byType(EventRoomJoined)
	require.Len(t, joined, 1)
	payload := decodePayload[RoomJoinedPayload](t, joined[0])
	assert.Equal(t, "r1", payload.RoomID)
	assert.Equal(t, "alice", payload.Self.ID)
	assert.NotEmpty(t, payload.Self.Color)
	assert.Len(t, payload.State.Pages, 1)
	assert.Equal(t, "Canvas 1", payload.State.Pages[0].Name)
	assert.Empty(t, payload.State.Actions)
	assert.Len(t, payload.State.Users, 1)

	bob := &recordingSender{}
	room.Join("bob", "Bob", bob)

	// the peer gets a delta, not a snapshot
	require.Len(t, alice.byType(EventUserJoined), 1)
	require.Empty(t, bob.byType(EventUserJoined))
	userJoined := decodePayload[UserJoinedPayload](t, alice.byType(EventUserJoined)[0])
	assert.Equal(t, "bob", userJoined.User.ID)

	// the second snapshot sees both users
	bobJoined := decodePayload[RoomJoinedPayload](t, bob.byType(EventRoomJoined)[0])
	assert.Len(t, bobJoined.State.Users, 2)
}

func TestRejoinOverwritesStaleEntryAndKeepsUndoStack(t *testing.T) {
	room, _ := newTestRoom(t, "r1", "alice")
	pageID := room.Snapshot().Pages[0].ID

	room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))
	_, ok := room.Undo("alice")
	require.True(t, ok)

	// reconnect under the same identity
	fresh := &recordingSender{}
	room.Join("alice", "Alice", fresh)
	assert.Equal(t, 1, room.UserCount())

	state := decodePayload[RoomJoinedPayload](t, fresh.byType(EventRoomJoined)[0]).State
	require.Contains(t, state.UserUndoStacks, "alice")
	assert.Equal(t, []string{"a1"}, state.UserUndoStacks["alice"])
}

func TestCommitAssignsAuthorTimestampAndOrder(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID

	a1, ok := room.Commit("alice", freehand("a1", pageID,
		Point{X: 0.1, Y: 0.2}, Point{X: 0.3, Y: 0.4}, Point{X: 0.5, Y: 0.6}))
	require.True(t, ok)
	assert.Equal(t, "alice", a1.UserID)
	assert.Equal(t, "r1", a1.RoomID)
	assert.GreaterOrEqual(t, a1.CreatedAt, room.CreatedAt().UnixMilli())

	// spoofed author is overwritten
	spoofed := shape("b1", pageID, ActionRect, Point{X: 0, Y: 0}, Point{X: 1, Y: 1})
	spoofed.UserID = "alice"
	b1, ok := room.Commit("bob", spoofed)
	require.True(t, ok)
	assert.Equal(t, "bob", b1.UserID)

	state := room.Snapshot()
	assert.Equal(t, []string{"a1", "b1"}, state.ActionOrder)
	assert.Len(t, state.Actions, 2)

	// committer gets no echo, the peer gets the full action
	aliceCreated := senders["alice"].byType(EventDrawCreated)
	require.Len(t, aliceCreated, 1) // only bob's action
	bobCreated := senders["bob"].byType(EventDrawCreated)
	require.Len(t, bobCreated, 1) // only alice's action
	got := decodePayload[DrawCreatedPayload](t, bobCreated[0])
	assert.Equal(t, "a1", got.Action.ID)
	assert.Equal(t, a1.Points, got.Action.Points)
}

func TestCommitWithoutJoinIsNoOp(t *testing.T) {
	room, _ := newTestRoom(t, "r1", "alice")
	pageID := room.Snapshot().Pages[0].ID
	_, ok := room.Commit("ghost", freehand("g1", pageID, Point{X: 0.5, Y: 0.5}))
	assert.False(t, ok)
	assert.Empty(t, room.Snapshot().ActionOrder)
}

func TestCommitDuplicateIDOverwritesSilently(t *testing.T) {
	room, _ := newTestRoom(t, "r1", "alice")
	pageID := room.Snapshot().Pages[0].ID

	room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))
	room.Commit("alice", freehand("a1", pageID, Point{X: 0.9, Y: 0.9}))

	state := room.Snapshot()
	// the order log appends both entries, the map holds the latest geometry
	assert.Equal(t, []string{"a1", "a1"}, state.ActionOrder)
	assert.Equal(t, []Point{{X: 0.9, Y: 0.9}}, state.Actions["a1"].Points)
}

func TestCommitMintsIDWhenMissing(t *testing.T) {
	room, _ := newTestRoom(t, "r1", "alice")
	pageID := room.Snapshot().Pages[0].ID
	a, ok := room.Commit("alice", freehand("", pageID, Point{X: 0.1, Y: 0.1}))
	require.True(t, ok)
	assert.NotEmpty(t, a.ID)
}

func TestUndoIsAuthorScopedAndLIFO(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID

	room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))
	room.Commit("bob", freehand("b1", pageID, Point{X: 0.2, Y: 0.2}))
	room.Commit("alice", freehand("a2", pageID, Point{X: 0.3, Y: 0.3}))

	// most recent own action first, never another user's
	id, ok := room.Undo("alice")
	require.True(t, ok)
	assert.Equal(t, "a2", id)

	id, ok = room.Undo("alice")
	require.True(t, ok)
	assert.Equal(t, "a1", id)

	// exhausted: repeated undo is a no-op every time
	_, ok = room.Undo("alice")
	assert.False(t, ok)
	_, ok = room.Undo("alice")
	assert.False(t, ok)

	state := room.Snapshot()
	assert.True(t, state.Actions["a1"].IsDeleted)
	assert.True(t, state.Actions["a2"].IsDeleted)
	assert.False(t, state.Actions["b1"].IsDeleted)
	assert.Equal(t, []string{"a2", "a1"}, state.UserUndoStacks["alice"])

	// the deletion is broadcast to everyone, the undoer included
	assert.Len(t, senders["alice"].byType(EventActionDeleted), 2)
	assert.Len(t, senders["bob"].byType(EventActionDeleted), 2)
	first := decodePayload[ActionDeletedPayload](t, senders["alice"].byType(EventActionDeleted)[0])
	assert.Equal(t, "a2", first.ActionID)
	assert.True(t, first.IsDeleted)
}

func TestClearIsPageScopedAndAuthorAgnostic(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	page1 := room.Snapshot().Pages[0].ID
	page2 := room.CreatePage().ID

	room.Commit("alice", freehand("a1", page1, Point{X: 0.1, Y: 0.1}))
	room.Commit("bob", freehand("b1", page1, Point{X: 0.2, Y: 0.2}))
	room.Commit("alice", freehand("a2", page2, Point{X: 0.3, Y: 0.3}))

	n := room.Clear(page1)
	assert.Equal(t, 2, n)

	state := room.Snapshot()
	assert.True(t, state.Actions["a1"].IsDeleted)
	assert.True(t, state.Actions["b1"].IsDeleted)
	assert.False(t, state.Actions["a2"].IsDeleted)

	// broadcast to everyone, issuer included
	require.Len(t, senders["alice"].byType(EventBoardCleared), 1)
	require.Len(t, senders["bob"].byType(EventBoardCleared), 1)
	cleared := decodePayload[BoardClearedPayload](t, senders["alice"].byType(EventBoardCleared)[0])
	assert.Equal(t, page1, cleared.PageID)
}

func TestMoveTranslatesAndRoundTrips(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID

	orig := freehand("a1", pageID, Point{X: 0.1, Y: 0.2}, Point{X: 0.3, Y: 0.4})
	room.Commit("alice", orig)
	room.Commit("alice", shape("a2", pageID, ActionStar, Point{X: 0.5, Y: 0.5}, Point{X: 0.7, Y: 0.9}))
	room.Commit("alice", freehand("a3", pageID, Point{X: 0.5, Y: 0.5}))
	room.Undo("alice") // a3 deleted, must not move

	ids := []string{"a1", "a2", "a3", "unknown"}
	n := room.Move("alice", ids, 0.25, -0.1)
	assert.Equal(t, 2, n)

	state := room.Snapshot()
	assert.InDelta(t, 0.35, state.Actions["a1"].Points[0].X, 1e-9)
	assert.InDelta(t, 0.1, state.Actions["a1"].Points[0].Y, 1e-9)
	assert.InDelta(t, 0.75, state.Actions["a2"].Start.X, 1e-9)
	assert.InDelta(t, 0.4, state.Actions["a2"].Start.Y, 1e-9)
	// deleted action untouched
	assert.InDelta(t, 0.5, state.Actions["a3"].Points[0].X, 1e-9)

	// the inverse move restores original geometry
	room.Move("alice", ids, -0.25, 0.1)
	state = room.Snapshot()
	for i, p := range orig.Points {
		assert.InDelta(t, p.X, state.Actions["a1"].Points[i].X, 1e-9)
		assert.InDelta(t, p.Y, state.Actions["a1"].Points[i].Y, 1e-9)
	}
	assert.InDelta(t, 0.5, state.Actions["a2"].Start.X, 1e-9)

	// the peer receives the same delta, not new geometry
	moved := senders["bob"].byType(EventDrawMoved)
	require.Len(t, moved, 2)
	payload := decodePayload[DrawMovedPayload](t, moved[0])
	assert.Equal(t, ids, payload.ActionIDs)
	assert.InDelta(t, 0.25, payload.Dx, 1e-9)
	assert.InDelta(t, -0.1, payload.Dy, 1e-9)
	// the mover gets no echo
	assert.Empty(t, senders["alice"].byType(EventDrawMoved))
}

func TestPageLifecycle(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice")
	page1 := room.Snapshot().Pages[0].ID

	p2 := room.CreatePage()
	assert.Equal(t, "Canvas 2", p2.Name)
	assert.Equal(t, 2, room.PageCount())

	// the full page list is broadcast, issuer included
	updated := senders["alice"].byType(EventPageUpdated)
	require.Len(t, updated, 1)
	pages := decodePayload[PageUpdatedPayload](t, updated[0]).Pages
	assert.Len(t, pages, 2)

	room.Commit("alice", freehand("a1", p2.ID, Point{X: 0.1, Y: 0.1}))

	// deleting a page orphans its actions as deleted
	require.NoError(t, room.DeletePage(p2.ID))
	assert.Equal(t, 1, room.PageCount())
	state := room.Snapshot()
	assert.True(t, state.Actions["a1"].IsDeleted)

	// unknown page id is a silent no-op
	require.NoError(t, room.DeletePage("nope"))
	assert.Equal(t, 1, room.PageCount())

	// the last page can never be deleted
	err := room.DeletePage(page1)
	assert.ErrorIs(t, err, ErrLastPage)
	assert.Equal(t, 1, room.PageCount())
}

func TestLeaveKeepsActionsAndNotifiesPeers(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID
	room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))

	require.True(t, room.Leave("alice"))
	assert.False(t, room.Leave("alice"), "second leave is idempotent")

	left := senders["bob"].byType(EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", decodePayload[UserLeftPayload](t, left[0]).UserID)
	// the leaver is no longer addressed
	assert.Empty(t, senders["alice"].byType(EventUserLeft))

	state := room.Snapshot()
	assert.NotContains(t, state.Users, "alice")
	assert.Contains(t, state.Actions, "a1")
	assert.Contains(t, state.UserUndoStacks, "alice")
}

func TestCursorUpdateGoesToPeersOnly(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID

	room.UpdateCursor("alice", Point{X: 0.4, Y: 0.6}, pageID)

	require.Len(t, senders["bob"].byType(EventCursorUpdated), 1)
	assert.Empty(t, senders["alice"].byType(EventCursorUpdated))

	got := decodePayload[CursorUpdatedPayload](t, senders["bob"].byType(EventCursorUpdated)[0])
	assert.Equal(t, "alice", got.UserID)
	assert.InDelta(t, 0.4, got.Position.X, 1e-9)

	// only the latest position is retained
	room.UpdateCursor("alice", Point{X: 0.8, Y: 0.2}, pageID)
	cursor := room.Snapshot().Users["alice"].Cursor
	require.NotNil(t, cursor)
	assert.InDelta(t, 0.8, cursor.X, 1e-9)
}

// TestSnapshotMatchesIncrementalReplica checks the reconnection equivalence
// contract: a replica built purely from broadcasts holds the same visible
// actions, in the same order, as a fresh join snapshot.
func TestSnapshotMatchesIncrementalReplica(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID

	room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))
	room.Commit("bob", shape("b1", pageID, ActionEllipse, Point{X: 0.2, Y: 0.2}, Point{X: 0.4, Y: 0.4}))
	room.Commit("alice", freehand("a2", pageID, Point{X: 0.3, Y: 0.3}))
	room.Undo("bob")
	room.Move("alice", []string{"a1"}, 0.1, 0.1)
	room.Clear("some-other-page")

	// bob's replica: his own commits applied optimistically, everything else
	// from the broadcast stream
	replica := map[string]DrawAction{
		"b1": shape("b1", pageID, ActionEllipse, Point{X: 0.2, Y: 0.2}, Point{X: 0.4, Y: 0.4}),
	}
	var received []string
	for _, e := range senders["bob"].all() {
		switch e.Type {
		case EventDrawCreated:
			p := decodePayload[DrawCreatedPayload](t, e)
			replica[p.Action.ID] = p.Action
			received = append(received, p.Action.ID)
		case EventActionDeleted:
			p := decodePayload[ActionDeletedPayload](t, e)
			a := replica[p.ActionID]
			a.IsDeleted = p.IsDeleted
			replica[p.ActionID] = a
		case EventDrawMoved:
			p := decodePayload[DrawMovedPayload](t, e)
			for _, id := range p.ActionIDs {
				a, ok := replica[id]
				if !ok || a.IsDeleted {
					continue
				}
				a.Translate(p.Dx, p.Dy)
				replica[id] = a
			}
		case EventBoardCleared:
			p := decodePayload[BoardClearedPayload](t, e)
			for id, a := range replica {
				if a.PageID == p.PageID {
					a.IsDeleted = true
					replica[id] = a
				}
			}
		}
	}

	// a fresh join yields the same visible world
	carol := &recordingSender{}
	room.Join("carol", "Carol", carol)
	state := decodePayload[RoomJoinedPayload](t, carol.byType(EventRoomJoined)[0]).State

	assert.Equal(t, []string{"a1", "b1", "a2"}, state.ActionOrder)
	// broadcasts arrive in acceptance order; bob's own commit is absent from
	// his stream and is covered by his optimistic local copy
	var peerOrder []string
	for _, id := range state.ActionOrder {
		if state.Actions[id].UserID != "bob" {
			peerOrder = append(peerOrder, id)
		}
	}
	assert.Equal(t, peerOrder, received)
	for _, id := range state.ActionOrder {
		want := state.Actions[id]
		got, ok := replica[id]
		require.True(t, ok, "replica missing %s", id)
		assert.Equal(t, want.IsDeleted, got.IsDeleted, "deletion flag for %s", id)
		if !want.IsDeleted {
			if want.Type == ActionFreehand {
				for i := range want.Points {
					assert.InDelta(t, want.Points[i].X, got.Points[i].X, 1e-9)
					assert.InDelta(t, want.Points[i].Y, got.Points[i].Y, 1e-9)
				}
			} else {
				assert.InDelta(t, want.Start.X, got.Start.X, 1e-9)
				assert.InDelta(t, want.End.Y, got.End.Y, 1e-9)
			}
		}
	}
}

func TestSnapshotDoesNotAliasRoomState(t *testing.T) {
	room, _ := newTestRoom(t, "r1", "alice")
	pageID := room.Snapshot().Pages[0].ID
	room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))

	state := room.Snapshot()
	state.Actions["a1"].Points[0].X = 0.999
	state.ActionOrder[0] = "tampered"
	state.Pages[0].Name = "tampered"

	fresh := room.Snapshot()
	assert.InDelta(t, 0.1, fresh.Actions["a1"].Points[0].X, 1e-9)
	assert.Equal(t, []string{"a1"}, fresh.ActionOrder)
	assert.Equal(t, "Canvas 1", fresh.Pages[0].Name)
}

func TestSyncSendsSnapshotToRequesterOnly(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")

	room.Sync("alice", SyncReasonFullSync)

	syncs := senders["alice"].byType(EventRoomStateSync)
	require.Len(t, syncs, 1)
	payload := decodePayload[RoomStateSyncPayload](t, syncs[0])
	assert.Equal(t, SyncReasonFullSync, payload.Reason)
	assert.Len(t, payload.State.Users, 2)
	assert.Empty(t, senders["bob"].byType(EventRoomStateSync))
}

func TestSlowPeerDoesNotStallTheRoom(t *testing.T) {
	room, senders := newTestRoom(t, "r1", "alice", "bob")
	pageID := room.Snapshot().Pages[0].ID

	senders["bob"].mu.Lock()
	senders["bob"].full = true
	senders["bob"].mu.Unlock()

	done := make(chan struct{})
	go func() {
		room.Commit("alice", freehand("a1", pageID, Point{X: 0.1, Y: 0.1}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("commit blocked on a full peer queue")
	}
	assert.Len(t, room.Snapshot().ActionOrder, 1)
}
