package collaboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/collaboard/collaboard/core"
)

// joinError maps an admission failure onto the wire code reported in
// room:join:error.
func joinError(roomID string, err error) core.RoomJoinErrorPayload {
	p := core.RoomJoinErrorPayload{RoomID: roomID, Message: err.Error()}
	switch {
	case errors.Is(err, core.ErrRoomExists):
		p.Code = core.JoinErrorConflict
	case errors.Is(err, core.ErrRoomNotFound):
		p.Code = core.JoinErrorNotFound
	case errors.Is(err, core.ErrUnauthorized):
		p.Code = core.JoinErrorUnauthorized
	default:
		p.Code = "400"
	}
	return p
}

// RoomJoinHandler admits the dispatching connection into a room, creating it
// first when the intent is create. Admission failures are reported to the
// failing connection only; the connection stays open for a retry.
func (app *App) RoomJoinHandler(ctx context.Context, e *core.Event) error {
	var payload core.RoomJoinPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal room:join payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return app.eventRouter.EmitTo(core.EventRoomJoinError,
			joinError(payload.RoomID, err), e.Sender)
	}

	var room *core.Room
	var err error
	switch payload.Action {
	case core.JoinIntentCreate:
		room, err = app.registry.GetOrCreate(payload.RoomID, payload.Password)
	default:
		room, err = app.registry.Get(payload.RoomID)
		if err == nil {
			err = room.Authorize(payload.Password)
		}
	}
	if err != nil {
		return app.eventRouter.EmitTo(core.EventRoomJoinError,
			joinError(payload.RoomID, err), e.Sender)
	}

	// A connection switching rooms leaves its old one first.
	if prev, ok := app.sessions.Load(e.Sender); ok && prev != payload.RoomID {
		if prevRoom, err := app.registry.Get(prev); err == nil {
			prevRoom.Leave(e.Sender)
		}
	}

	sender, ok := app.wsManager.Sender(e.Sender)
	if !ok {
		// The connection dropped between dispatch and admission.
		return nil
	}

	room.Join(e.Sender, payload.UserName, sender)
	app.sessions.Store(e.Sender, payload.RoomID)
	return nil
}

// RoomLeaveHandler handles an explicit leave. The same cleanup runs
// implicitly when the connection closes.
func (app *App) RoomLeaveHandler(ctx context.Context, e *core.Event) error {
	var payload core.RoomLeavePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal room:leave payload: %w", err)
	}
	app.sessions.Delete(e.Sender)
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.Leave(e.Sender)
	return nil
}

// RoomSyncHandler answers with a full state snapshot, the escape hatch for a
// client that suspects it has diverged from the broadcast stream.
func (app *App) RoomSyncHandler(ctx context.Context, e *core.Event) error {
	var payload core.RoomSyncPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal room:sync payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.Sync(e.Sender, core.SyncReasonFullSync)
	return nil
}

// DrawCommitHandler appends an action to the room's log. The author and
// timestamp the client supplied are discarded; an unknown room or an invalid
// action is a silent no-op.
func (app *App) DrawCommitHandler(ctx context.Context, e *core.Event) error {
	var payload core.DrawCommitPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal draw:commit payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("draw:commit payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.Commit(e.Sender, payload.Action)
	return nil
}

func (app *App) DrawMoveHandler(ctx context.Context, e *core.Event) error {
	var payload core.DrawMovePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal draw:move payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.Move(e.Sender, payload.ActionIDs, payload.Dx, payload.Dy)
	return nil
}

// ActionUndoHandler undoes the dispatcher's most recent action. The userId
// field on the wire is ignored: undo is always scoped to the connection's
// own identity.
func (app *App) ActionUndoHandler(ctx context.Context, e *core.Event) error {
	var payload core.ActionUndoPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal action:undo payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.Undo(e.Sender)
	return nil
}

func (app *App) BoardClearHandler(ctx context.Context, e *core.Event) error {
	var payload core.BoardClearPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal board:clear payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.Clear(payload.PageID)
	return nil
}

func (app *App) CursorUpdateHandler(ctx context.Context, e *core.Event) error {
	var payload core.CursorUpdatePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal cursor:update payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.UpdateCursor(e.Sender, payload.Position, payload.PageID)
	return nil
}

func (app *App) PageCreateHandler(ctx context.Context, e *core.Event) error {
	var payload core.PageCreatePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal page:create payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	room.CreatePage()
	return nil
}

// PageDeleteHandler removes a page. Deleting the room's only page is refused
// and reported back to the issuer.
func (app *App) PageDeleteHandler(ctx context.Context, e *core.Event) error {
	var payload core.PageDeletePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal page:delete payload: %w", err)
	}
	room, err := app.registry.Get(payload.RoomID)
	if err != nil {
		return nil
	}
	if err := room.DeletePage(payload.PageID); err != nil {
		return app.eventRouter.EmitTo(core.EventError, core.ErrorPayload{
			Code:    "400",
			Message: err.Error(),
		}, e.Sender)
	}
	return nil
}
