// Package context implements TokenAccountant and ContextManager (spec
// §4.3): per-message token accounting and the curation algorithm that
// keeps a ConversationHistory within a provider's context window.
package context

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"vtcode/internal/core"
)

// Accountant estimates token counts, exact when a provider-matched
// tokenizer is available (tiktoken-go) and an approximation (bytes/4)
// otherwise. Grounded on kadirpekel-hector/pkg/utils/tokens.go.
type Accountant struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
	model    string
	exact    bool
}

var (
	encodingCache   = map[string]*tiktoken.Tiktoken{}
	encodingCacheMu sync.RWMutex
)

// NewAccountant returns an Accountant for model. If no tiktoken encoding
// can be resolved for the model (including the cl100k_base fallback),
// the Accountant degrades to the bytes/4 approximation rather than
// failing session construction.
func NewAccountant(model string) *Accountant {
	encName := encodingForModel(model)

	encodingCacheMu.RLock()
	cached, ok := encodingCache[encName]
	encodingCacheMu.RUnlock()
	if ok {
		return &Accountant{encoding: cached, model: model, exact: true}
	}

	enc, err := tiktoken.GetEncoding(encName)
	if err != nil {
		return &Accountant{model: model, exact: false}
	}
	encodingCacheMu.Lock()
	encodingCache[encName] = enc
	encodingCacheMu.Unlock()
	return &Accountant{encoding: enc, model: model, exact: true}
}

// Count returns the token count for text, exact or approximated.
func (a *Accountant) Count(text string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.exact && a.encoding != nil {
		return len(a.encoding.Encode(text, nil, nil))
	}
	// Approximation: bytes/4, at least 1 for non-empty text. No separate
	// adjustment is made for code-like text.
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountMessage counts one message's tokens including the OpenAI-cookbook
// per-message role/formatting overhead (3 tokens), applied uniformly
// across providers as the approximation baseline.
func (a *Accountant) CountMessage(role string, text string) int {
	return 3 + a.Count(role) + a.Count(text)
}

// Exact reports whether this Accountant is backed by a real tokenizer
// rather than the byte-length approximation.
func (a *Accountant) Exact() bool { return a.exact }

// encodingForModel maps a model name to a tiktoken encoding, approximating
// non-OpenAI providers (Anthropic, Gemini) with cl100k_base exactly as
// kadirpekel-hector's GetEncodingForModel does.
func encodingForModel(model string) string {
	table := map[string]string{
		"gpt-4":             "cl100k_base",
		"gpt-4-turbo":       "cl100k_base",
		"gpt-4o":            "o200k_base",
		"gpt-4o-mini":       "o200k_base",
		"gpt-3.5-turbo":     "cl100k_base",
		"claude":            "cl100k_base",
		"claude-3":          "cl100k_base",
		"claude-3-5-sonnet": "cl100k_base",
		"gemini":            "cl100k_base",
		"gemini-1.5-pro":    "cl100k_base",
		"gemini-2.0-flash":  "cl100k_base",
	}
	if enc, ok := table[model]; ok {
		return enc
	}
	for prefix, enc := range table {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return enc
		}
	}
	return "cl100k_base"
}

// CountHistory sums CountMessage over every message's text parts plus its
// tool_result output and reasoning text, recording per-index counts into
// ledger. tool_call parts (name and arguments) are not counted.
func (a *Accountant) CountHistory(msgs []core.Message, ledger *core.TokenLedger) int {
	total := 0
	for i, m := range msgs {
		text := m.Text()
		for _, p := range m.Parts {
			if p.Kind == core.PartToolResult && p.ToolResult != nil {
				text += p.ToolResult.Output
			}
			if p.Kind == core.PartReasoning {
				text += p.Reasoning
			}
		}
		n := a.CountMessage(string(m.Role), text)
		ledger.Record(i, n)
		total += n
	}
	return total
}
