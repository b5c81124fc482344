// Package openai adapts github.com/sashabaranov/go-openai to the
// provider-neutral llm.Client trait, a real SDK-backed streaming
// implementation rather than a hand-rolled raw-HTTP/SSE client.
package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	sdk "github.com/sashabaranov/go-openai"

	"vtcode/internal/llm"
	"vtcode/internal/obslog"
)

// Client adapts an *sdk.Client to llm.Client.
type Client struct {
	sdk   *sdk.Client
	model string
}

// New constructs a Client. baseURL may be empty to use the default
// OpenAI-compatible endpoint; model defaults to gpt-4o-mini.
func New(apiKey, baseURL, model string) *Client {
	cfg := sdk.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{sdk: sdk.NewClientWithConfig(cfg), model: model}
}

func (c *Client) StreamCompletion(ctx context.Context, req llm.Request) (llm.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := sdk.ChatCompletionRequest{
		Model:     model,
		Messages:  toMessages(req.Messages),
		Stream:    true,
		StreamOptions: &sdk.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload.Tools = toTools(req.Tools)
		payload.ToolChoice = "auto"
	}

	obslog.Info("llm.openai", "streaming request", obslog.Fields{
		"model":    model,
		"messages": len(payload.Messages),
		"tools":    len(payload.Tools),
	})

	stream, err := c.sdk.CreateChatCompletionStream(ctx, payload)
	if err != nil {
		obslog.Error("llm.openai", "stream request failed", obslog.Fields{"error": err.Error()})
		return nil, err
	}
	return &openaiStream{stream: stream, builders: map[int]*toolCallBuilder{}}, nil
}

func (c *Client) ModelLimits(model string) llm.ModelLimits {
	switch {
	case model == "gpt-4o" || model == "gpt-4o-mini" || model == "gpt-4-turbo":
		return llm.ModelLimits{ContextWindow: 128000, MaxResponseTokens: 16384}
	case model == "gpt-4":
		return llm.ModelLimits{ContextWindow: 8192, MaxResponseTokens: 4096}
	default:
		return llm.ModelLimits{ContextWindow: 128000, MaxResponseTokens: 8000}
	}
}

func toMessages(msgs []llm.Message) []sdk.ChatCompletionMessage {
	out := make([]sdk.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		sm := sdk.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == llm.RoleTool {
			sm.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, sdk.ToolCall{
				ID:   tc.ID,
				Type: sdk.ToolTypeFunction,
				Function: sdk.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, sm)
	}
	return out
}

func toTools(decls []llm.ToolDecl) []sdk.Tool {
	out := make([]sdk.Tool, 0, len(decls))
	for _, d := range decls {
		params := d.Parameters
		out = append(out, sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

type toolCallBuilder struct {
	id   string
	name string
	args []byte
}

// openaiStream buffers tool-call deltas across SSE chunks (the SDK, like
// the wire format it wraps, fragments function-call arguments across many
// events) and surfaces them as llm.DeltaToolCallPart plus a final assembled
// set of ToolCalls on llm.DeltaEnd.
type openaiStream struct {
	stream *sdk.ChatCompletionStream

	mu       sync.Mutex
	queue    []llm.Delta
	builders map[int]*toolCallBuilder
	order    []int
	done     bool
}

func (s *openaiStream) Recv(ctx context.Context) (llm.Delta, error) {
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

	for {
		select {
		case <-ctx.Done():
			return llm.Delta{}, ctx.Err()
		default:
		}

		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return llm.Delta{}, io.EOF
		}
		if err != nil {
			return llm.Delta{}, err
		}

		if resp.Usage != nil {
			return llm.Delta{
				Kind:             llm.DeltaUsage,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}, nil
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if len(choice.Delta.ToolCalls) > 0 {
			s.mu.Lock()
			var last llm.Delta
			have := false
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				b, ok := s.builders[idx]
				if !ok {
					b = &toolCallBuilder{}
					s.builders[idx] = b
					s.order = append(s.order, idx)
				}
				if tc.ID != "" {
					b.id = tc.ID
				}
				if tc.Function.Name != "" {
					b.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					b.args = append(b.args, tc.Function.Arguments...)
					last = llm.Delta{Kind: llm.DeltaToolCallPart, ToolCallID: b.id, ToolCallName: b.name, ArgsFragment: tc.Function.Arguments}
					have = true
				}
			}
			s.mu.Unlock()
			if have {
				return last, nil
			}
			continue
		}

		if choice.Delta.Content != "" {
			return llm.Delta{Kind: llm.DeltaText, Text: choice.Delta.Content}, nil
		}

		if choice.FinishReason != "" {
			s.mu.Lock()
			end := llm.Delta{Kind: llm.DeltaEnd, FinishReason: string(choice.FinishReason)}
			if string(choice.FinishReason) == "tool_calls" {
				for _, idx := range s.order {
					b := s.builders[idx]
					if b == nil || b.name == "" {
						continue
					}
					end.ToolCalls = append(end.ToolCalls, llm.ToolCallReq{ID: b.id, Name: b.name, Arguments: string(b.args)})
				}
				s.builders = map[int]*toolCallBuilder{}
				s.order = nil
			}
			s.mu.Unlock()
			return end, nil
		}
	}
}

func (s *openaiStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.stream.Close()
}
