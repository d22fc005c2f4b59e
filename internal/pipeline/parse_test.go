package pipeline

import (
	"testing"

	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/pkg/types"
)

func TestScanPrefixes_DoneTakesPrecedenceOverGuide(t *testing.T) {
	kind, payload, _, _ := ScanPrefixes("GUIDE: (10, 20) click here\nDONE: all set")
	if kind != PrefixDone {
		t.Fatalf("kind = %v, want PrefixDone", kind)
	}
	if payload != "all set" {
		t.Fatalf("payload = %q, want %q", payload, "all set")
	}
}

func TestScanPrefixes_ClarifyTakesPrecedenceOverGuide(t *testing.T) {
	kind, payload, _, _ := ScanPrefixes("GUIDE: (1, 2) do it\nCLARIFY: which window?")
	if kind != PrefixClarify {
		t.Fatalf("kind = %v, want PrefixClarify", kind)
	}
	if payload != "which window?" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestScanPrefixes_LastGuideWins(t *testing.T) {
	kind, _, guide, found := ScanPrefixes("GUIDE: (1, 2) first\nGUIDE: (3, 4) second")
	if kind != PrefixGuide || !found {
		t.Fatalf("kind = %v found = %v, want PrefixGuide/true", kind, found)
	}
	if guide.X != 3 || guide.Y != 4 || guide.Instruction != "second" {
		t.Fatalf("guide = %+v, want (3,4,second)", guide)
	}
}

func TestScanPrefixes_NoPrefixReturnsNone(t *testing.T) {
	kind, _, _, found := ScanPrefixes("just some plain text")
	if kind != PrefixNone || found {
		t.Fatalf("kind = %v found = %v, want PrefixNone/false", kind, found)
	}
}

func TestFirstSentence(t *testing.T) {
	cases := map[string]string{
		"Opening Chrome. Then searching.": "Opening Chrome.",
		"Done!":                           "Done!",
		"no terminator here":              "no terminator here",
	}
	for in, want := range cases {
		if got := FirstSentence(in); got != want {
			t.Errorf("FirstSentence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripSignalPrefixes(t *testing.T) {
	if got := StripSignalPrefixes("NARRATE: Opening Chrome"); got != "Opening Chrome" {
		t.Fatalf("got %q", got)
	}
	if got := StripSignalPrefixes("plain narration"); got != "plain narration" {
		t.Fatalf("got %q", got)
	}
}

func TestParseComputerAction_LeftClick(t *testing.T) {
	call := types.ToolCall{Name: "computer", Arguments: `{"action":"left_click","coordinate":[100,200]}`}
	a, ok := ParseComputerAction(call)
	if !ok {
		t.Fatal("expected ok")
	}
	if a.Kind != desktop.ActionLeftClick || a.X != 100 || a.Y != 200 {
		t.Fatalf("a = %+v", a)
	}
}

func TestParseComputerAction_ScrollDefaultsAmount(t *testing.T) {
	call := types.ToolCall{Name: "computer", Arguments: `{"action":"scroll","coordinate":[1,1],"scroll_direction":"down"}`}
	a, ok := ParseComputerAction(call)
	if !ok {
		t.Fatal("expected ok")
	}
	if a.ScrollAmount != desktop.DefaultScrollAmount {
		t.Fatalf("ScrollAmount = %d, want %d", a.ScrollAmount, desktop.DefaultScrollAmount)
	}
}

func TestParseComputerAction_Drag(t *testing.T) {
	call := types.ToolCall{Name: "computer", Arguments: `{"action":"left_click_drag","start_coordinate":[1,2],"coordinate":[3,4]}`}
	a, ok := ParseComputerAction(call)
	if !ok {
		t.Fatal("expected ok")
	}
	if a.StartX != 1 || a.StartY != 2 || a.EndX != 3 || a.EndY != 4 {
		t.Fatalf("a = %+v", a)
	}
}

func TestParseComputerAction_UnknownActionIsNoOp(t *testing.T) {
	call := types.ToolCall{Name: "computer", Arguments: `{"action":"teleport"}`}
	_, ok := ParseComputerAction(call)
	if ok {
		t.Fatal("expected not ok for unknown action")
	}
}

func TestParseComputerAction_MalformedArgumentsIsNoOp(t *testing.T) {
	call := types.ToolCall{Name: "computer", Arguments: `not json`}
	_, ok := ParseComputerAction(call)
	if ok {
		t.Fatal("expected not ok for malformed arguments")
	}
}

func TestParseTolerantJSON_StripsMarkdownFence(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"blocks\":[{\"directive\":\"open settings\"}]}\n```\nLet me know."
	var out PipelineResponse
	if err := ParseTolerantJSON(raw, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Blocks) != 1 || out.Blocks[0].Directive != "open settings" {
		t.Fatalf("out = %+v", out)
	}
}

func TestParseTolerantJSON_NoObjectIsError(t *testing.T) {
	if err := ParseTolerantJSON("no json here at all", &PipelineResponse{}); err == nil {
		t.Fatal("expected error")
	}
}
