package llm

import "github.com/vox-cua/agent/pkg/types"

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall = types.ToolCall

// ToolDefinition describes a tool that can be offered to an LLM.
//
// Idempotent and CacheableSeconds extend the shared types.ToolDefinition with
// fields only the LLM provider layer cares about: whether a tool call can be
// retried blindly, and how long its result may be reused across calls.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// EstimatedDurationMs is the declared p50 latency for budget tier assignment.
	EstimatedDurationMs int

	// MaxDurationMs is the declared p99 upper bound, used as a hard timeout.
	MaxDurationMs int

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool

	// CacheableSeconds is how long results can be cached (0 = never).
	CacheableSeconds int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities = types.ModelCapabilities
