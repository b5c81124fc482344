package llm

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestMockClientStreamsTextThenEnd(t *testing.T) {
	c := MockClient{}
	stream, err := c.StreamCompletion(context.Background(), Request{
		Model:    "mock",
		Messages: []Message{{Role: RoleUser, Content: "hello there"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	var text strings.Builder
	sawUsage, sawEnd := false, false
	for {
		d, err := stream.Recv(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		switch d.Kind {
		case DeltaText:
			text.WriteString(d.Text)
		case DeltaUsage:
			sawUsage = true
		case DeltaEnd:
			sawEnd = true
			if d.FinishReason != "stop" {
				t.Fatalf("expected finish_reason=stop, got %q", d.FinishReason)
			}
		}
	}
	if !sawUsage || !sawEnd {
		t.Fatalf("expected both usage and end deltas, got usage=%v end=%v", sawUsage, sawEnd)
	}
	if !strings.Contains(text.String(), "last_user=hello there") {
		t.Fatalf("expected echoed last user message, got %q", text.String())
	}
}

func TestMockClientModelLimits(t *testing.T) {
	c := MockClient{}
	limits := c.ModelLimits("anything")
	if limits.ContextWindow <= 0 || limits.MaxResponseTokens <= 0 {
		t.Fatalf("expected positive limits, got %+v", limits)
	}
}
