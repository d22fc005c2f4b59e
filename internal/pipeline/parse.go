package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/pkg/types"
)

// PrefixKind tags which of the four executor-to-system signal prefixes
// (spec.md §6) was found in a streamed or completed response.
type PrefixKind int

const (
	PrefixNone PrefixKind = iota
	PrefixGuide
	PrefixNarrate
	PrefixDone
	PrefixClarify
)

var prefixRe = regexp.MustCompile(`(?m)(GUIDE|NARRATE|DONE|CLARIFY):\s*(.*)`)

// guideRe parses "GUIDE: (x, y) instruction".
var guideRe = regexp.MustCompile(`^\(\s*(-?\d+)\s*,\s*(-?\d+)\s*\)\s*(.*)$`)

// Guide is the parsed payload of a GUIDE: prefix.
type Guide struct {
	X, Y        int
	Instruction string
}

// ScanPrefixes scans text anywhere (not only at the start) for the four
// signal prefixes and returns the terminating signal per spec.md §6: if
// DONE or CLARIFY appear, they take precedence over GUIDE for loop
// termination; if multiple GUIDE: occurrences appear, the last one wins.
//
// Returns PrefixNone if no recognized prefix is present anywhere in text.
func ScanPrefixes(text string) (kind PrefixKind, payload string, guide Guide, guideFound bool) {
	matches := prefixRe.FindAllStringSubmatch(text, -1)
	var lastGuide Guide
	haveGuide := false

	for _, m := range matches {
		tag, rest := m[1], strings.TrimSpace(m[2])
		switch tag {
		case "DONE":
			return PrefixDone, rest, lastGuide, haveGuide
		case "CLARIFY":
			return PrefixClarify, rest, lastGuide, haveGuide
		case "GUIDE":
			if g, ok := parseGuide(rest); ok {
				lastGuide = g
				haveGuide = true
			}
		case "NARRATE":
			if kind == PrefixNone {
				kind, payload = PrefixNarrate, rest
			}
		}
	}
	if haveGuide {
		return PrefixGuide, "", lastGuide, true
	}
	return kind, payload, lastGuide, haveGuide
}

func parseGuide(rest string) (Guide, bool) {
	m := guideRe.FindStringSubmatch(rest)
	if m == nil {
		return Guide{}, false
	}
	x, err1 := strconv.Atoi(m[1])
	y, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return Guide{}, false
	}
	return Guide{X: x, Y: y, Instruction: strings.TrimSpace(m[3])}, true
}

// FirstSentence returns the first sentence of text, used to decide what to
// stream-narrate (spec.md §4.3.1 step 2). A "sentence" ends at the first
// '.', '!', or '?' followed by a space or end of string.
func FirstSentence(text string) string {
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return strings.TrimSpace(text)
}

// StripSignalPrefixes removes any of NARRATE:/GUIDE:/DONE:/CLARIFY: from the
// front of text, used to clean speculative narration text before speaking it
// (spec.md §4.5 simple path: "stripped of NARRATE:/GUIDE:/DONE:/CLARIFY:
// prefixes").
func StripSignalPrefixes(text string) string {
	for _, tag := range []string{"GUIDE:", "NARRATE:", "DONE:", "CLARIFY:"} {
		if strings.HasPrefix(strings.TrimSpace(text), tag) {
			text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), tag))
		}
	}
	return text
}

// ParseComputerAction decodes a tool call's raw JSON arguments (the
// provider adapter has already reassembled any streamed input_json_delta
// fragments into a complete string, spec.md §9 "Streaming JSON deltas") into
// a ComputerAction (spec.md §6 computer-control tool schema). Malformed
// arguments or an unknown action name become a no-op with a logged warning
// rather than an abort (spec.md §9 "Dynamic tool-input parsing").
func ParseComputerAction(call types.ToolCall) (desktop.ComputerAction, bool) {
	var input map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
		slog.Warn("pipeline: dropping malformed tool-call arguments", "tool", call.Name, "err", err)
		return desktop.ComputerAction{}, false
	}
	action, _ := input["action"].(string)

	a := desktop.ComputerAction{}
	switch action {
	case "left_click":
		a.Kind = desktop.ActionLeftClick
		a.X, a.Y = coord(input, "coordinate")
	case "right_click":
		a.Kind = desktop.ActionRightClick
		a.X, a.Y = coord(input, "coordinate")
	case "double_click":
		a.Kind = desktop.ActionDoubleClick
		a.X, a.Y = coord(input, "coordinate")
	case "middle_click":
		a.Kind = desktop.ActionMiddleClick
		a.X, a.Y = coord(input, "coordinate")
	case "type":
		a.Kind = desktop.ActionType
		a.Text = str(input, "text")
	case "key":
		a.Kind = desktop.ActionKey
		a.Key = str(input, "key")
	case "scroll":
		a.Kind = desktop.ActionScroll
		a.X, a.Y = coord(input, "coordinate")
		a.ScrollDirection = desktop.ScrollDirection(str(input, "scroll_direction"))
		amt := num(input, "scroll_amount")
		if amt == 0 {
			amt = desktop.DefaultScrollAmount
		}
		a.ScrollAmount = amt
	case "mouse_move":
		a.Kind = desktop.ActionMouseMove
		a.X, a.Y = coord(input, "coordinate")
	case "left_click_drag":
		a.Kind = desktop.ActionDrag
		a.StartX, a.StartY = coord(input, "start_coordinate")
		a.EndX, a.EndY = coord(input, "coordinate")
	default:
		slog.Warn("pipeline: unknown computer-control action name, treating as no-op", "tool", call.Name, "action", action)
		return desktop.ComputerAction{}, false
	}
	return a, true
}

func coord(input map[string]any, key string) (int, int) {
	v, ok := input[key]
	if !ok {
		return 0, 0
	}
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return 0, 0
	}
	x, _ := arr[0].(float64)
	y, _ := arr[1].(float64)
	return int(x), int(y)
}

func str(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func num(input map[string]any, key string) int {
	if v, ok := input[key].(float64); ok {
		return int(v)
	}
	return 0
}

// ParseTolerantJSON extracts a JSON object from raw planner output that may
// be wrapped in markdown fences or surrounded by prose (spec.md §4.3.2 /
// §6: "Parser must tolerate markdown fences and leading/trailing prose").
func ParseTolerantJSON(raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return fmt.Errorf("pipeline: no JSON object found in planner output")
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), out)
}
