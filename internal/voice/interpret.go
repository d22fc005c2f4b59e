package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/vox-cua/agent/internal/agenterr"
	"github.com/vox-cua/agent/internal/pipeline"
	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/types"
)

// Interpretation is the interpreter model's reading of a complex-path
// transcript (spec.md §4.5 complex path).
type Interpretation struct {
	// Type is one of "command", "followup", "interrupt", "chat", "memory".
	Type string `json:"type"`
	// Directive is the (possibly contextually rewritten) instruction to
	// execute, for command and followup.
	Directive string `json:"directive"`
	// Response is the text spoken back to the user.
	Response string `json:"response"`
	// Remember is the fact to persist, for memory.
	Remember string `json:"remember"`
}

var validInterpretTypes = map[string]bool{
	"command": true, "followup": true, "interrupt": true, "chat": true, "memory": true,
}

const interpretSystemPrompt = `You interpret one spoken input to a voice-controlled computer-use agent. Using the recent conversation and the stored user facts, classify the input and rewrite it into an executable directive when needed.

Respond with ONLY this JSON:
{"type": "command" | "followup" | "interrupt" | "chat" | "memory", "directive": "self-contained instruction for the agent (command, followup)", "response": "short sentence spoken back to the user", "remember": "the fact to store (memory only)"}

- "command": a fresh task. Rewrite pronouns and references into a self-contained directive.
- "followup": a correction or continuation of the previous task ("actually, make it Firefox"). The directive must restate the full corrected task.
- "interrupt": the user just wants the agent to pause or acknowledge; no action.
- "chat": small talk or a question answerable without touching the computer. Put the answer in "response".
- "memory": the user states a preference or fact to remember ("remember I like aisle seats"). Phrase "remember" as a third-person fact.

No prose outside the JSON.`

// InterpretVoiceInput asks the interpreter model to classify a complex-path
// transcript against the rolling session context and stored memory. Callers
// fall back to the simple path when it errors.
func InterpretVoiceInput(ctx context.Context, model llm.Provider, raw string, sessionLines, memoryFacts []string) (Interpretation, error) {
	var b strings.Builder
	if len(memoryFacts) > 0 {
		b.WriteString("Stored user facts:\n")
		for _, f := range memoryFacts {
			b.WriteString("- " + f + "\n")
		}
		b.WriteString("\n")
	}
	if len(sessionLines) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, line := range sessionLines {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Input: " + raw)

	resp, err := model.Complete(ctx, llm.CompletionRequest{
		Messages:     []types.Message{{Role: "user", Content: []types.Block{types.TextBlock(b.String())}}},
		SystemPrompt: interpretSystemPrompt,
	})
	if err != nil {
		return Interpretation{}, fmt.Errorf("%w: interpret call: %v", agenterr.ErrNetworkTransient, err)
	}
	if resp == nil {
		return Interpretation{}, fmt.Errorf("%w: interpret call: empty response", agenterr.ErrNetworkTransient)
	}

	var interp Interpretation
	if err := pipeline.ParseTolerantJSON(resp.Content, &interp); err != nil {
		return Interpretation{}, fmt.Errorf("%w: interpret: %v", agenterr.ErrParse, err)
	}
	if !validInterpretTypes[interp.Type] {
		return Interpretation{}, fmt.Errorf("%w: interpret type %q", agenterr.ErrParse, interp.Type)
	}
	return interp, nil
}
