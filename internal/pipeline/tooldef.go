package pipeline

import "github.com/vox-cua/agent/pkg/types"

// ComputerControlTool is the single fixed tool offered to the executor model
// (spec.md §6, §9 Non-goals: "no arbitrary tool plugins beyond the fixed
// computer-control tool"). Each call performs one action, selected by the
// required "action" field, matching the wire contract in spec.md §6.
var ComputerControlTool = types.ToolDefinition{
	Name:        "computer",
	Description: computerToolDescription,
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"left_click", "right_click", "double_click", "middle_click",
					"type", "key", "scroll", "mouse_move", "left_click_drag",
				},
				"description": "Which computer-control action to perform.",
			},
			"coordinate": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"minItems":    2,
				"maxItems":    2,
				"description": "[x, y] target in model-space pixels. Required for click, scroll, mouse_move, and as the drag destination.",
			},
			"start_coordinate": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"minItems":    2,
				"maxItems":    2,
				"description": "[x, y] drag origin in model-space pixels. Required for left_click_drag.",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Literal text to type. Required for type.",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Key or chord, e.g. \"Return\" or \"cmd+space\". Required for key.",
			},
			"scroll_direction": map[string]any{
				"type":        "string",
				"enum":        []string{"up", "down", "left", "right"},
				"description": "Required for scroll.",
			},
			"scroll_amount": map[string]any{
				"type":        "integer",
				"description": "Scroll notches. Defaults to 3 if omitted.",
			},
		},
		"required": []string{"action"},
	},
}

const computerToolDescription = `Control the mouse, keyboard, and scroll wheel on the user's screen. ` +
	`Coordinates are in the screenshot's own pixel space; the caller rescales them to the real display. ` +
	`Issue one or more calls per turn; they execute in the order given, each followed by a brief settle ` +
	`before the next screenshot is captured.`

// Tools returns the fixed tool list passed to the executor model.
func Tools() []types.ToolDefinition {
	return []types.ToolDefinition{ComputerControlTool}
}
