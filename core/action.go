package core

// Point is a position in normalized coordinate space, x and y in [0, 1],
// independent of any viewer's canvas resolution.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ActionType discriminates the DrawAction variants. ActionFreehand carries a
// point trail, every other type is a shape defined by a start/end pair.
type ActionType string

const (
	ActionFreehand ActionType = "freehand"
	ActionRect     ActionType = "rect"
	ActionEllipse  ActionType = "ellipse"
	ActionTriangle ActionType = "triangle"
	ActionStar     ActionType = "star"
	ActionArrow    ActionType = "arrow"
	ActionDiamond  ActionType = "diamond"
	ActionPentagon ActionType = "pentagon"
	ActionHexagon  ActionType = "hexagon"
)

// Valid reports whether t is a member of the closed variant set.
func (t ActionType) Valid() bool {
	switch t {
	case ActionFreehand, ActionRect, ActionEllipse, ActionTriangle, ActionStar,
		ActionArrow, ActionDiamond, ActionPentagon, ActionHexagon:
		return true
	}
	return false
}

// BrushType selects the stroke style of a freehand action.
type BrushType string

const (
	BrushPencil BrushType = "pencil"
	BrushMarker BrushType = "marker"
	BrushLaser  BrushType = "laser"
	BrushEraser BrushType = "eraser"
)

// DrawAction is one committed drawing operation. Once stored, its geometry is
// never rewritten except by Translate, and it is never removed; Undo and Clear
// only toggle IsDeleted. UserID and CreatedAt are assigned by the server on
// commit, client-supplied values are discarded.
type DrawAction struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId"`
	PageID      string     `json:"pageId" validate:"required"`
	UserID      string     `json:"userId"`
	Type        ActionType `json:"type"`
	Color       string     `json:"color"`
	StrokeWidth float64    `json:"strokeWidth"`
	IsDeleted   bool       `json:"isDeleted"`
	// CreatedAt is a server-assigned timestamp in milliseconds since epoch.
	CreatedAt int64 `json:"createdAt"`

	// Freehand variant fields.
	Points    []Point   `json:"points,omitempty"`
	BrushType BrushType `json:"brushType,omitempty"`

	// Shape variant fields.
	Start *Point `json:"start,omitempty"`
	End   *Point `json:"end,omitempty"`
}

// Translate moves the action's geometry by (dx, dy) in normalized space,
// in place.
func (a *DrawAction) Translate(dx, dy float64) {
	switch a.Type {
	case ActionFreehand:
		for i := range a.Points {
			a.Points[i].X += dx
			a.Points[i].Y += dy
		}
	default:
		if a.Start != nil {
			a.Start.X += dx
			a.Start.Y += dy
		}
		if a.End != nil {
			a.End.X += dx
			a.End.Y += dy
		}
	}
}

// clone returns a deep copy, detaching the point slice and the start/end
// pointers so snapshots cannot alias live room state.
func (a *DrawAction) clone() DrawAction {
	c := *a
	if a.Points != nil {
		c.Points = make([]Point, len(a.Points))
		copy(c.Points, a.Points)
	}
	if a.Start != nil {
		s := *a.Start
		c.Start = &s
	}
	if a.End != nil {
		e := *a.End
		c.End = &e
	}
	return c
}

// Page is a named sub-canvas within a room. Every action is scoped to exactly
// one page.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CursorPosition is a user's last known pointer position. Ephemeral: only the
// latest value is retained, it never enters the action log.
type CursorPosition struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	PageID    string  `json:"pageId"`
	UpdatedAt int64   `json:"updatedAt"`
}

// User is a participant currently present in a room.
type User struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Color  string          `json:"color"`
	Cursor *CursorPosition `json:"cursor"`
}

// RoomState is the full point-in-time copy of a room sent to a joining or
// resyncing client. It never carries the room password.
type RoomState struct {
	ID             string                `json:"id"`
	Users          map[string]User       `json:"users"`
	Actions        map[string]DrawAction `json:"actions"`
	ActionOrder    []string              `json:"actionOrder"`
	Pages          []Page                `json:"pages"`
	CreatedAt      int64                 `json:"createdAt"`
	UserUndoStacks map[string][]string   `json:"userUndoStacks"`
}
