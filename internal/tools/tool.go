// Package tools implements ToolRegistry and ToolPipeline:
// the catalog of tools with JSON-schema input contracts, and the per-call
// execution pipeline (resolve -> schema validate -> policy gate ->
// approval gate -> execute -> post-process -> emit).
package tools

import (
	"context"
	"fmt"

	"vtcode/internal/core"
)

// Args is the decoded-JSON argument map handed to a tool's Execute.
type Args map[string]any

// Tool is the unified interface every tool implementation satisfies
//.
type Tool interface {
	Name() string
	Descriptor() core.ToolDescriptor
	Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error)
}

// Previewer is an optional interface for tools that can render an
// approval-dialog preview before executing.
type Previewer interface {
	Preview(ctx context.Context, args Args) (*Preview, error)
}

// PreviewKind tags the Preview union.
type PreviewKind string

const (
	PreviewDiff    PreviewKind = "diff"
	PreviewCommand PreviewKind = "command"
	PreviewFiles   PreviewKind = "files"
	PreviewText    PreviewKind = "text"
)

// Preview is shown to the user in the approval dialog.
type Preview struct {
	Kind     PreviewKind
	Summary  string
	Content  string
	Affected []string
	RiskHint string
}

// ToolContext is the per-call context exposed to a tool's Execute:
// workspace root and write-detection hook (cancellation comes via ctx).
type ToolContext struct {
	WorkspaceRoot string
	// RecordModifiedFile is called by write tools to add a path to the
	// result's ModifiedFiles and the turn's modified-files list.
	RecordModifiedFile func(path string)
}

// ParameterDef describes one property of a tool's input schema. The
// schema is compiled and validated by a real JSON-Schema engine rather
// than hand-checked field by field.
type ParameterDef struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Items       map[string]any // only meaningful when Type == "array"
}

// BaseTool provides the common Name/Descriptor plumbing every concrete
// tool embeds, matching tools/interface.go's BaseTool.
type BaseTool struct {
	name        string
	description string
	params      []ParameterDef
	risk        core.RiskLevel
	effects     core.SideEffects
}

// NewBaseTool constructs a BaseTool.
func NewBaseTool(name, description string, params []ParameterDef, risk core.RiskLevel, effects core.SideEffects) BaseTool {
	return BaseTool{name: name, description: description, params: params, risk: risk, effects: effects}
}

// Name implements Tool.
func (b BaseTool) Name() string { return b.name }

// Descriptor implements Tool, building a JSON-Schema-like document from
// the authored ParameterDef list.
func (b BaseTool) Descriptor() core.ToolDescriptor {
	properties := make(map[string]any)
	var required []string
	for _, p := range b.params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if p.Type == "array" && p.Items != nil {
			prop["items"] = p.Items
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	risk := b.risk
	if risk == "" {
		risk = core.RiskLow
	}
	return core.ToolDescriptor{
		Name:        b.name,
		Description: b.description,
		Schema:      schema,
		Risk:        risk,
		SideEffects: b.effects,
	}
}

func successResult(output string, modified ...string) core.ToolResult {
	return core.ToolResult{Status: core.StatusSuccess, Output: output, ModifiedFiles: modified}
}

func failure(kind core.FailureKind, err error) core.ToolResult {
	if err == nil {
		return core.ToolResult{Status: core.StatusFailure, Kind: kind, Message: "unknown error"}
	}
	return core.ToolResult{Status: core.StatusFailure, Kind: kind, Message: err.Error()}
}

func failuref(kind core.FailureKind, format string, args ...any) core.ToolResult {
	return core.ToolResult{Status: core.StatusFailure, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// GetString extracts a string argument, defaulting if absent/mistyped.
func GetString(args Args, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// GetInt extracts an integer argument, accepting JSON's float64 decoding.
func GetInt(args Args, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case int64:
			return int(n)
		}
	}
	return def
}

// GetBool extracts a boolean argument, defaulting if absent/mistyped.
func GetBool(args Args, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetStringSlice extracts a []string argument from a decoded []any.
func GetStringSlice(args Args, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
