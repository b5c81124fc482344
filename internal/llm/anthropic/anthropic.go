// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// provider-neutral llm.Client trait. The teacher ships no Anthropic
// integration; this adapter is grounded on the SDK's own streaming event
// model (MessageStartEvent/ContentBlockDeltaEvent/MessageStopEvent) rather
// than a teacher precedent.
package anthropic

import (
	"context"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"vtcode/internal/llm"
	"vtcode/internal/obslog"
)

// Client adapts an Anthropic SDK client to llm.Client.
type Client struct {
	sdk   sdk.Client
	model string
}

// New constructs a Client. model defaults to claude-3-5-sonnet-latest.
func New(apiKey, model string) *Client {
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &Client{sdk: sdk.NewClient(option.WithAPIKey(apiKey)), model: model}
}

func (c *Client) StreamCompletion(ctx context.Context, req llm.Request) (llm.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
	}

	var system string
	var messages []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case llm.RoleUser:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			messages = append(messages, sdk.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			messages = append(messages, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	params.Messages = messages

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: t.Parameters["properties"],
				},
			},
		})
	}

	obslog.Info("llm.anthropic", "streaming request", obslog.Fields{
		"model":    model,
		"messages": len(messages),
		"tools":    len(req.Tools),
	})

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	return &anthropicStream{stream: stream, builders: map[int]*blockBuilder{}}, nil
}

func (c *Client) ModelLimits(model string) llm.ModelLimits {
	return llm.ModelLimits{ContextWindow: 200000, MaxResponseTokens: 8192}
}

type blockBuilder struct {
	id   string
	name string
	json []byte
	kind string // "tool_use" or "text"
}

// anthropicStream translates the SDK's server-sent-event union into the
// core Delta tagged union.
type anthropicStream struct {
	stream *sdk.Streaming[sdk.MessageStreamEventUnion]

	mu       sync.Mutex
	builders map[int]*blockBuilder
	order    []int
	usage    llm.Delta
	haveUsage bool
	queue    []llm.Delta
	done     bool
}

func (s *anthropicStream) Recv(ctx context.Context) (llm.Delta, error) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return d, nil
	}
	if s.done {
		s.mu.Unlock()
		return llm.Delta{}, io.EOF
	}
	s.mu.Unlock()

	for s.stream.Next() {
		select {
		case <-ctx.Done():
			return llm.Delta{}, ctx.Err()
		default:
		}
		event := s.stream.Current()

		switch variant := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			s.mu.Lock()
			b := &blockBuilder{}
			if tu, ok := variant.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				b.kind = "tool_use"
				b.id = tu.ID
				b.name = tu.Name
			} else {
				b.kind = "text"
			}
			s.builders[int(variant.Index)] = b
			s.order = append(s.order, int(variant.Index))
			s.mu.Unlock()

		case sdk.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case sdk.TextDelta:
				return llm.Delta{Kind: llm.DeltaText, Text: delta.Text}, nil
			case sdk.InputJSONDelta:
				s.mu.Lock()
				b := s.builders[int(variant.Index)]
				s.mu.Unlock()
				if b != nil {
					b.json = append(b.json, delta.PartialJSON...)
					return llm.Delta{Kind: llm.DeltaToolCallPart, ToolCallID: b.id, ToolCallName: b.name, ArgsFragment: delta.PartialJSON}, nil
				}
			}

		case sdk.MessageDeltaEvent:
			s.mu.Lock()
			s.usage = llm.Delta{Kind: llm.DeltaUsage, CompletionTokens: int(variant.Usage.OutputTokens)}
			s.haveUsage = true
			s.mu.Unlock()

		case sdk.MessageStopEvent:
			s.mu.Lock()
			end := llm.Delta{Kind: llm.DeltaEnd, FinishReason: "stop"}
			for _, idx := range s.order {
				b := s.builders[idx]
				if b != nil && b.kind == "tool_use" {
					end.ToolCalls = append(end.ToolCalls, llm.ToolCallReq{ID: b.id, Name: b.name, Arguments: string(b.json)})
				}
			}
			if s.haveUsage {
				s.queue = append(s.queue, s.usage)
			}
			s.queue = append(s.queue, end)
			s.done = true
			first := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return first, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return llm.Delta{}, err
	}
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	return llm.Delta{}, io.EOF
}

func (s *anthropicStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	return s.stream.Close()
}
