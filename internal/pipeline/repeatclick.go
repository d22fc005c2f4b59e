package pipeline

import "github.com/vox-cua/agent/internal/desktop"

// RepeatClickWindow is the side length of the square window all recorded
// click coordinates must fall within, relative to the first click, to count
// as a repeat-click run (spec.md §4.4).
const RepeatClickWindow = 30

// MinRepeatClicks is the minimum run length before a warning fires.
const MinRepeatClicks = 2

// RepeatClickWarning is appended to the last tool-result of a batch once a
// repeat-click run is detected. Part of the executor prefix protocol
// (spec.md §4.4): the text is read by the model, not by a human.
const RepeatClickWarning = "Notice: you have clicked the same spot on screen multiple times in a row. " +
	"Consider switching to keyboard navigation (Tab, arrow keys, Enter) or an app-specific keyboard " +
	"shortcut instead of repeated clicking."

// RepeatClickDetector records click coordinates within one direct-execution
// batch and flags runs of same-spot clicks (spec.md §4.4). Typing resets the
// record; escape, tab, scroll, and mouse-move do not affect it. Not safe for
// concurrent use — owned by a single batch's execution loop.
type RepeatClickDetector struct {
	clicks []point
}

type point struct{ x, y int }

// NewRepeatClickDetector returns an empty detector.
func NewRepeatClickDetector() *RepeatClickDetector {
	return &RepeatClickDetector{}
}

// Observe records a to the detector. Click actions (left/right/double) are
// recorded; ActionType resets the record entirely; every other action kind
// is ignored (neither recorded nor resetting).
func (d *RepeatClickDetector) Observe(a desktop.ComputerAction) {
	switch a.Kind {
	case desktop.ActionType:
		d.clicks = nil
	case desktop.ActionLeftClick, desktop.ActionRightClick, desktop.ActionDoubleClick:
		d.clicks = append(d.clicks, point{a.X, a.Y})
	}
}

// CheckAndClear reports whether the recorded clicks form a repeat-click run
// (≥ MinRepeatClicks consecutive clicks within a RepeatClickWindow-pixel
// square of the first), and if so clears the record so the same run cannot
// warn twice (spec.md §8 invariant 6).
func (d *RepeatClickDetector) CheckAndClear() bool {
	if len(d.clicks) < MinRepeatClicks {
		return false
	}
	first := d.clicks[0]
	for _, p := range d.clicks[1:] {
		if abs(p.x-first.x) > RepeatClickWindow || abs(p.y-first.y) > RepeatClickWindow {
			return false
		}
	}
	d.clicks = nil
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
