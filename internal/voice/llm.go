// Package voice implements the Voice Coordinator (spec.md section 4.J):
// it turns one captured utterance into STT text, hands that text to an
// external LLM for tool selection, dispatches any resulting tool call
// through the Tool Executor, and turns the outcome into speech via TTS.
//
// The LLM turn shape is grounded on vigil's internal/triage/engine.go
// dispatch loop (message accumulation, tool_use/tool_result content
// blocks), narrowed from a multi-round investigation to a single
// utterance's "zero or one tool call" turn. The Anthropic wiring mirrors
// goadesign-goa-ai's features/model/anthropic adapter: a narrow
// MessagesClient seam wrapping *anthropic.MessagesService, so a fake can
// stand in during tests without a real API call.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/nightwatch/internal/toolexec"
)

// DefaultResponseTokens bounds a single LLM call when the caller
// doesn't set Request.MaxTokens, mirroring triage's ResponseTokens.
const DefaultResponseTokens = 1024

// StopReason mirrors triage's StopReason split, narrowed to the two
// outcomes a single voice turn cares about.
type StopReason string

const (
	StopEnd     StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// Message is one turn of the conversation sent to or received from the
// LLM provider.
type Message struct {
	Role    string
	Content []ContentBlock
}

// ContentBlock is a single unit of message content: plain text, a tool
// call the model wants executed, or the result of one the coordinator
// already ran.
type ContentBlock struct {
	Type      string
	Text      string
	ID        string
	Name      string
	Input     json.RawMessage
	ToolUseID string
	Content   string
	IsError   bool
}

// Usage reports the token cost of a single LLM call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ToolDef describes one callable tool to the LLM, derived from a
// toolexec.Handler.
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is the input to a single LLM call.
type Request struct {
	MaxTokens int
	System    string
	Messages  []Message
	Tools     []ToolDef
}

// Response is the result of a single LLM call.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Provider is the LLM backend the coordinator turns to for tool
// selection. Satisfied by *AnthropicProvider or a test fake.
type Provider interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// MessagesClient captures the subset of the Anthropic SDK client the
// adapter uses. Satisfied by *sdk.Client.Messages, or a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements Provider against the real Anthropic
// Messages API.
type AnthropicProvider struct {
	client MessagesClient
	model  string
}

// NewAnthropicProvider builds a provider from an already-constructed
// MessagesClient (typically &sdk.NewClient(...).Messages), letting
// tests substitute a fake without touching the network.
func NewAnthropicProvider(client MessagesClient, model string) (*AnthropicProvider, error) {
	if client == nil {
		return nil, errors.New("voice: anthropic client is required")
	}
	if model == "" {
		return nil, errors.New("voice: model identifier is required")
	}
	return &AnthropicProvider{client: client, model: model}, nil
}

// NewAnthropicProviderFromAPIKey constructs a provider using the
// default Anthropic HTTP client, reading connection defaults the way
// sdk.NewClient does.
func NewAnthropicProviderFromAPIKey(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("voice: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicProvider(&c.Messages, model)
}

// Send issues one non-streaming Messages.New call and translates the
// response back into the coordinator's own Response shape.
func (p *AnthropicProvider) Send(ctx context.Context, req *Request) (*Response, error) {
	params, err := p.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("voice: anthropic messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func (p *AnthropicProvider) prepareRequest(req *Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("voice: at least one message is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultResponseTokens
	}

	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(p.model),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return &params, nil
}

func encodeMessages(msgs []Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "text":
				if b.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(b.Text))
				}
			case "tool_use":
				var input any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("voice: decode tool_use input: %w", err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(b.ID, input, b.Name))
			case "tool_result":
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case "user":
			out = append(out, sdk.NewUserMessage(blocks...))
		case "assistant":
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("voice: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("voice: no encodable message content")
	}
	return out, nil
}

func encodeTools(defs []ToolDef) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("voice: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateResponse(msg *sdk.Message) *Response {
	resp := &Response{StopReason: StopReason(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, ContentBlock{Type: "text", Text: block.Text})
		case "tool_use":
			resp.Content = append(resp.Content, ContentBlock{
				Type:  "tool_use",
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(block.Input),
			})
		}
	}
	resp.Usage = Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}
	return resp
}

// toolDefsFromHandlers builds the LLM-facing tool catalog from the Tool
// Executor's registered handlers, deriving a minimal JSON Schema from
// each handler's ParamSpec list.
func toolDefsFromHandlers(handlers []toolexec.Handler) []ToolDef {
	out := make([]ToolDef, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, ToolDef{
			Name:        h.Name,
			Description: h.Description,
			InputSchema: paramSchema(h.Params),
		})
	}
	return out
}

func paramSchema(params []toolexec.ParamSpec) json.RawMessage {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		properties[p.Name] = map[string]any{"type": jsonSchemaType(p.Type)}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

func jsonSchemaType(t toolexec.ParamType) string {
	switch t {
	case toolexec.ParamString:
		return "string"
	case toolexec.ParamNumber:
		return "number"
	case toolexec.ParamBool:
		return "boolean"
	default:
		return "string"
	}
}
