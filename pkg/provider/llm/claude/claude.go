// Package claude provides an LLM provider backed by the Anthropic Messages
// API, used directly (not through any-llm-go) so the adapter can speak the
// exact streaming and caching contract our computer-control tool schema is
// built on: image content blocks for screenshots, tool_use/tool_result
// pairing across turns, and an ephemeral cache_control block on the system
// prompt so the (large, static) tool catalogue isn't re-priced on every
// executor turn.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/types"
)

// Provider implements llm.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default Anthropic API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new Anthropic LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("claude: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	client := anthropic.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// StreamCompletion implements llm.Provider. It translates the Messages API's
// SSE event sequence (message_start, content_block_start,
// content_block_delta carrying text_delta or input_json_delta,
// content_block_stop, message_delta carrying stop_reason, message_stop) into
// our Chunk stream, accumulating tool_use input JSON fragments by content
// block index the same way the OpenAI adapter accumulates by tool-call
// index.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("claude: build params: %w", err)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("claude: start stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		toolCallAccum := map[int64]*types.ToolCall{}
		stopReason := ""

		for stream.Next() {
			event := stream.Current()

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if tu := variant.ContentBlock.AsToolUse(); tu.ID != "" {
					toolCallAccum[variant.Index] = &types.ToolCall{
						ID:   tu.ID,
						Name: tu.Name,
					}
				}

			case anthropic.ContentBlockDeltaEvent:
				out := llm.Chunk{}
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out.Text = delta.Text
				case anthropic.InputJSONDelta:
					if tc, ok := toolCallAccum[variant.Index]; ok {
						tc.Arguments += delta.PartialJSON
					}
				}
				if out.Text != "" {
					select {
					case ch <- out:
					case <-ctx.Done():
						return
					}
				}

			case anthropic.MessageDeltaEvent:
				stopReason = string(variant.Delta.StopReason)

			case anthropic.MessageStopEvent:
				out := llm.Chunk{FinishReason: mapStopReason(stopReason)}
				for i := int64(0); len(out.ToolCalls) < len(toolCallAccum); i++ {
					if tc, ok := toolCallAccum[i]; ok {
						out.ToolCalls = append(out.ToolCalls, *tc)
					}
				}
				select {
				case ch <- out:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("claude: build params: %w", err)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude: create message: %w", err)
	}

	result := &llm.CompletionResponse{
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}
	result.Content = text.String()
	return result, nil
}

// CountTokens implements llm.Provider using Anthropic's token-counting
// endpoint semantics approximated locally: the Messages API exposes a
// dedicated count_tokens call, but it costs a network round trip on every
// budget check, so we approximate the same way the OpenAI adapter does and
// leave the exact endpoint for a future upgrade.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	total := 0
	for _, m := range messages {
		for _, b := range m.Content {
			switch b.Kind {
			case types.ContentImage:
				total += 1_500 // Claude prices images roughly by tile count; this is a conservative flat estimate.
			default:
				total += (len(b.Text) + len(b.ToolInput) + 3) / 4
			}
		}
		total += 4
	}
	return total, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.model)
}

func modelCapabilities(model string) types.ModelCapabilities {
	caps := types.ModelCapabilities{
		SupportsToolCalling: true,
		SupportsStreaming:   true,
		SupportsVision:      true,
		ContextWindow:       200_000,
		MaxOutputTokens:     8_192,
	}

	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "opus"):
		caps.MaxOutputTokens = 4_096
	case strings.Contains(lower, "haiku"):
		caps.MaxOutputTokens = 8_192
	case strings.Contains(lower, "sonnet"):
		caps.MaxOutputTokens = 8_192
	}
	return caps
}

// mapStopReason translates Anthropic's stop_reason values into the
// FinishReason vocabulary the rest of the pipeline already expects from the
// OpenAI adapter.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

// buildParams converts a CompletionRequest into Anthropic SDK params. The
// system prompt is sent as a single block tagged with an ephemeral cache
// breakpoint, since it's dominated by the static tool catalogue and repeats
// unchanged across most turns of a work block.
func (p *Provider) buildParams(req llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(modelCapabilities(p.model).MaxOutputTokens),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Text: req.SystemPrompt,
				CacheControl: anthropic.CacheControlEphemeralParam{
					Type: "ephemeral",
				},
			},
		}
	}

	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Messages = append(params.Messages, msg)
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        td.Name,
				Description: anthropic.String(td.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: td.Parameters["properties"],
					Required:   toStringSlice(td.Parameters["required"]),
				},
			},
		})
	}

	return params, nil
}

// convertMessage converts a types.Message into an Anthropic SDK message
// param. Claude's wire format maps almost one-to-one onto our content-block
// model: text, image, tool_use, and tool_result blocks all have a direct
// Anthropic counterpart, unlike OpenAI where tool results must be split into
// separate wire messages.
func convertMessage(m types.Message) (anthropic.MessageParam, error) {
	var role anthropic.MessageParamRole
	switch m.Role {
	case "user":
		role = anthropic.MessageParamRoleUser
	case "assistant":
		role = anthropic.MessageParamRoleAssistant
	default:
		return anthropic.MessageParam{}, fmt.Errorf("claude: unsupported message role %q (system prompts use req.SystemPrompt)", m.Role)
	}

	var blocks []anthropic.ContentBlockParamUnion
	for _, b := range m.Content {
		switch b.Kind {
		case types.ContentText:
			blocks = append(blocks, anthropic.NewTextBlock(b.Text))
		case types.ContentImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(b.ImageMediaType, b.ImageB64))
		case types.ContentToolUse:
			blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, rawJSON(b.ToolInput), b.ToolName))
		case types.ContentToolResult:
			blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Text, b.ToolIsError))
		}
	}

	return anthropic.MessageParam{Role: role, Content: blocks}, nil
}

// rawJSON parses a JSON object string into the any value the SDK's
// NewToolUseBlock helper expects as tool input.
func rawJSON(s string) any {
	if s == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return map[string]any{}
	}
	return v
}

// toStringSlice converts a JSON-schema "required" field (decoded as
// []any by encoding/json) into []string, ignoring non-string entries.
func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
