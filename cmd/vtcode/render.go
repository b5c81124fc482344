package main

import (
	"strings"
	"sync"

	"vtcode/cmd/vtcode/ui"
	"vtcode/internal/core"
)

// terminalSink renders the emitted event stream to the terminal: emoji
// markers per item kind, a scrolling gray line for in-flight tool args,
// inline tool-result summaries. There is no approval event to intercept
// here, since the approval gate lives inside the pipeline; this sink only
// ever renders, it never drives control flow.
type terminalSink struct {
	mu            sync.Mutex
	prefixPrinted bool
	toolArgBuffer string
}

func (t *terminalSink) Emit(e core.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case core.EventTurnStarted:
		t.prefixPrinted = false
		t.toolArgBuffer = ""

	case core.EventItemStarted:
		t.renderStarted(e.ItemPayload)

	case core.EventItemUpdated:
		t.renderUpdated(e.ItemPayload, e.Delta)

	case core.EventItemCompleted:
		t.renderCompleted(e.ItemPayload)

	case core.EventTurnCompleted:
		if t.prefixPrinted {
			ui.Print("\n")
		}
		t.prefixPrinted = false

	case core.EventTurnFailed:
		t.clearToolArgLine()
		ui.Printf("\n⚠️  turn failed: %s\n", e.FailureMessage)

	case core.EventThreadError:
		ui.Printf("\n⚠️  %s\n", e.FailureMessage)
	}
}

func (t *terminalSink) renderStarted(item *core.Item) {
	if item == nil {
		return
	}
	switch item.Kind {
	case core.ItemCommandExecution:
		t.clearToolArgLine()
		ui.Printf("\n\n🔧 %s\n", strings.Join(item.Command, " "))
	case core.ItemMcpToolCall:
		t.clearToolArgLine()
		ui.Printf("\n\n🔧 %s\n", item.ToolName)
	case core.ItemWebSearch:
		t.clearToolArgLine()
		ui.Printf("\n\n🔎 %s\n", item.Query)
	case core.ItemReasoning:
		// kept lightweight to avoid UI spam
	}
}

func (t *terminalSink) renderUpdated(item *core.Item, delta string) {
	if item == nil || delta == "" {
		return
	}
	switch item.Kind {
	case core.ItemAgentMessage:
		if !t.prefixPrinted {
			ui.Print("\n🤖 Agent: ")
			t.prefixPrinted = true
		}
		ui.Print(delta)
	case core.ItemReasoning:
		if strings.TrimSpace(delta) != "" {
			ui.Printf("\n🤔 %s\n", delta)
		}
	case core.ItemCommandExecution, core.ItemMcpToolCall:
		t.toolArgBuffer += delta
		display := t.toolArgBuffer
		if len(display) > 80 {
			display = "..." + display[len(display)-77:]
		}
		ui.Printf("\r\033[90m   %s\033[0m\033[K", display)
	}
}

func (t *terminalSink) renderCompleted(item *core.Item) {
	if item == nil {
		return
	}
	switch item.Kind {
	case core.ItemCommandExecution:
		t.clearToolArgLine()
		ui.Printf("\n🔧 result (%s)\n", item.CommandStatus)
	case core.ItemMcpToolCall:
		t.clearToolArgLine()
		ui.Printf("\n🔧 %s result\n", item.ToolName)
	case core.ItemFileChange:
		ui.Printf("\n📝 %s (%s)\n", item.Path, item.PatchStatus)
	case core.ItemError:
		ui.Printf("\n⚠️  %s\n", item.ErrorMessage)
	}
}

func (t *terminalSink) clearToolArgLine() {
	if t.toolArgBuffer != "" {
		ui.Print("\r\033[K")
		t.toolArgBuffer = ""
	}
}
