// Package types defines the shared data structures that flow between the
// voice loop, the two-model pipeline, and the LLM/STT/TTS provider packages.
//
// These types are intentionally minimal — each package defines its own
// domain-specific structures, but cross-cutting wire types live here to avoid
// circular imports between pkg/provider/* and internal/*.
package types

import "time"

// ContentKind tags a single block inside a message's content sequence.
type ContentKind int

const (
	// ContentText is a plain UTF-8 text fragment.
	ContentText ContentKind = iota

	// ContentImage is a base64-encoded image (a screenshot, most commonly).
	ContentImage

	// ContentToolUse is a model-issued tool invocation.
	ContentToolUse

	// ContentToolResult is the caller's reply to a ContentToolUse block.
	ContentToolResult
)

// Block is one element of a message's content sequence. Exactly the fields
// relevant to Kind are meaningful; callers must switch on Kind before reading
// the rest.
type Block struct {
	Kind ContentKind

	// Text holds the payload for ContentText, and the human-readable
	// acknowledgement text for ContentToolResult.
	Text string

	// ImageB64 holds base64-encoded image bytes for ContentImage.
	ImageB64 string
	// ImageMediaType is the MIME type of ImageB64 (e.g. "image/png").
	ImageMediaType string

	// ToolUseID identifies a ContentToolUse or ContentToolResult block. A
	// ContentToolResult block's ToolUseID must match the ContentToolUse block
	// it answers.
	ToolUseID string
	// ToolName is set on ContentToolUse blocks.
	ToolName string
	// ToolInput is the raw JSON arguments object for ContentToolUse blocks.
	ToolInput string

	// ToolIsError marks a ContentToolResult as a failed tool execution.
	ToolIsError bool
}

// TextBlock returns a plain-text content block.
func TextBlock(text string) Block { return Block{Kind: ContentText, Text: text} }

// ImageBlock returns an image content block.
func ImageBlock(b64, mediaType string) Block {
	return Block{Kind: ContentImage, ImageB64: b64, ImageMediaType: mediaType}
}

// ToolUseBlock returns a tool-invocation content block.
func ToolUseBlock(id, name, input string) Block {
	return Block{Kind: ContentToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock returns a tool-result content block replying to id.
func ToolResultBlock(id, text string, isErr bool) Block {
	return Block{Kind: ContentToolResult, ToolUseID: id, Text: text, ToolIsError: isErr}
}

// Message is a single turn in a conversation with the executor or planner
// model. Role is one of "system", "user", or "assistant".
type Message struct {
	Role    string
	Content []Block
}

// CountImages returns the number of ContentImage blocks in m.
func (m Message) CountImages() int {
	n := 0
	for _, b := range m.Content {
		if b.Kind == ContentImage {
			n++
		}
	}
	return n
}

// ToolCall is a single tool invocation extracted from a model's response.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name                string
	Description         string
	Parameters          map[string]any
	EstimatedDurationMs int
	MaxDurationMs       int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	ContextWindow       int
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsVision      bool
	SupportsStreaming   bool
}

// TranscriptEntry is one line recorded by the rolling session context: either
// the user's utterance or the agent's spoken reply.
type TranscriptEntry struct {
	Speaker   string // "User" or "Agent"
	Text      string
	Timestamp time.Time
}
