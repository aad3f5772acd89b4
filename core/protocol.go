package core

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Client → server event types.
const (
	EventRoomJoin     = "room:join"
	EventRoomLeave    = "room:leave"
	EventRoomSync     = "room:sync"
	EventDrawCommit   = "draw:commit"
	EventDrawMove     = "draw:move"
	EventActionUndo   = "action:undo"
	EventBoardClear   = "board:clear"
	EventCursorUpdate = "cursor:update"
	EventPageCreate   = "page:create"
	EventPageDelete   = "page:delete"
)

// Server → client event types.
const (
	EventRoomJoined    = "room:joined"
	EventRoomJoinError = "room:join:error"
	EventUserJoined    = "room:user-joined"
	EventUserLeft      = "room:user-left"
	EventRoomStateSync = "room:state-sync"
	EventDrawCreated   = "draw:created"
	EventDrawMoved     = "draw:moved"
	EventActionDeleted = "action:updatedDeleted"
	EventBoardCleared  = "board:cleared"
	EventCursorUpdated = "cursor:updated"
	EventPageUpdated   = "page:updated"
	EventError         = "error"
)

// Join intents.
const (
	JoinIntentCreate = "create"
	JoinIntentJoin   = "join"
)

// Room state sync reasons.
const (
	SyncReasonReconnect = "reconnect"
	SyncReasonFullSync  = "full-sync"
)

// Join error codes reported in RoomJoinErrorPayload.
const (
	JoinErrorConflict     = "409"
	JoinErrorNotFound     = "404"
	JoinErrorUnauthorized = "401"
)

type RoomJoinPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserName string `json:"userName" validate:"required"`
	Password string `json:"password"`
	Action   string `json:"action" validate:"required,oneof=create join"`
}

func (p *RoomJoinPayload) Validate() error {
	return validate.Struct(p)
}

type RoomLeavePayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type RoomSyncPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type DrawCommitPayload struct {
	RoomID string     `json:"roomId" validate:"required"`
	Action DrawAction `json:"action"`
}

func (p *DrawCommitPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if !p.Action.Type.Valid() {
		return ErrInvalidActionType
	}
	return nil
}

type DrawMovePayload struct {
	RoomID    string   `json:"roomId" validate:"required"`
	ActionIDs []string `json:"actionIds" validate:"required"`
	Dx        float64  `json:"dx"`
	Dy        float64  `json:"dy"`
}

type ActionUndoPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}

type BoardClearPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	PageID string `json:"pageId" validate:"required"`
}

type CursorUpdatePayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	Position Point  `json:"position"`
	PageID   string `json:"pageId" validate:"required"`
}

type PageCreatePayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type PageDeletePayload struct {
	RoomID string `json:"roomId" validate:"required"`
	PageID string `json:"pageId" validate:"required"`
}

type RoomJoinedPayload struct {
	RoomID string    `json:"roomId"`
	Self   User      `json:"self"`
	State  RoomState `json:"state"`
}

type RoomJoinErrorPayload struct {
	RoomID  string `json:"roomId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type UserJoinedPayload struct {
	RoomID string `json:"roomId"`
	User   User   `json:"user"`
}

type UserLeftPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type RoomStateSyncPayload struct {
	RoomID string    `json:"roomId"`
	State  RoomState `json:"state"`
	Reason string    `json:"reason"`
}

type DrawCreatedPayload struct {
	RoomID string     `json:"roomId"`
	Action DrawAction `json:"action"`
}

type DrawMovedPayload struct {
	RoomID    string   `json:"roomId"`
	ActionIDs []string `json:"actionIds"`
	Dx        float64  `json:"dx"`
	Dy        float64  `json:"dy"`
}

type ActionDeletedPayload struct {
	RoomID    string `json:"roomId"`
	ActionID  string `json:"actionId"`
	IsDeleted bool   `json:"isDeleted"`
}

type BoardClearedPayload struct {
	RoomID string `json:"roomId"`
	PageID string `json:"pageId"`
}

type CursorUpdatedPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Position Point  `json:"position"`
	PageID   string `json:"pageId"`
}

type PageUpdatedPayload struct {
	RoomID string `json:"roomId"`
	Pages  []Page `json:"pages"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
