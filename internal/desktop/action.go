package desktop

// ActionKind tags a ComputerAction variant. Unknown kinds parsed from model
// output become a no-op with a logged warning rather than an abort (see
// parse.go in internal/pipeline).
type ActionKind int

const (
	ActionLeftClick ActionKind = iota
	ActionRightClick
	ActionDoubleClick
	ActionMiddleClick
	ActionType
	ActionKey
	ActionScroll
	ActionMouseMove
	ActionDrag
	ActionScreenshot // reserved, never dispatched by the executor directly
	ActionCursorQuery
)

// ScrollDirection is one of up/down/left/right.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// DefaultScrollAmount is used when the model omits scroll_amount.
const DefaultScrollAmount = 3

// ComputerAction is a tagged variant over the computer-control tool's input
// schema (spec.md §6). Only the fields relevant to Kind are meaningful.
type ComputerAction struct {
	Kind ActionKind

	X, Y int // click/scroll/mouse_move target, model-space until rescaled

	StartX, StartY int // drag origin, model-space until rescaled
	EndX, EndY     int // drag destination, model-space until rescaled

	Text string // ActionType payload
	Key  string // ActionKey chord/sequence, e.g. "cmd+space" or "Return"

	ScrollDirection ScrollDirection
	ScrollAmount    int
}

// IsClick reports whether a is one of the click variants that participate in
// repeat-click detection (§4.4).
func (a ComputerAction) IsClick() bool {
	switch a.Kind {
	case ActionLeftClick, ActionRightClick, ActionDoubleClick:
		return true
	default:
		return false
	}
}
