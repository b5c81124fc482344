package middleware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BasePromptMiddleware injects the base system prompt describing the
// workspace and the mandatory tool-usage conventions for vtcode's tool
// set.
type BasePromptMiddleware struct {
	BaseMiddleware
	WorkspaceRoot string
}

// NewBasePromptMiddleware returns a BasePromptMiddleware rooted at
// workspaceRoot.
func NewBasePromptMiddleware(workspaceRoot string) *BasePromptMiddleware {
	return &BasePromptMiddleware{
		BaseMiddleware: NewBaseMiddleware("base_prompt"),
		WorkspaceRoot:  workspaceRoot,
	}
}

func (m *BasePromptMiddleware) BeforeTurn(ctx context.Context, state *TurnState) error {
	basePrompt := fmt.Sprintf(`You are a terminal coding agent with access to tools for reading, writing,
and running commands in a workspace.

## Working Directory
Your workspace root is: %s
All paths you pass to tools are relative to this directory.

## Tool Usage
- read_file / write_file / edit_file operate on workspace-relative paths.
- list_dir, glob, and grep search the workspace.
- run_command executes an argv (no shell) and is subject to execution
  policy and, for risky invocations, user approval.
- Always supply every required argument; omitted required fields fail
  schema validation before anything runs.

`, m.WorkspaceRoot)

	state.SystemPrompt = basePrompt + state.SystemPrompt
	return nil
}

// PersonaMiddleware injects persona content from an optional persona.md
// at the workspace root, falling back to a default persona. There is no
// separate user/project persona layering, since vtcode has no per-agent
// home directory concept.
type PersonaMiddleware struct {
	BaseMiddleware
	WorkspaceRoot string
}

// NewPersonaMiddleware returns a PersonaMiddleware rooted at workspaceRoot.
func NewPersonaMiddleware(workspaceRoot string) *PersonaMiddleware {
	return &PersonaMiddleware{
		BaseMiddleware: NewBaseMiddleware("persona"),
		WorkspaceRoot:  workspaceRoot,
	}
}

// DefaultPersona is used when no persona.md exists in the workspace.
const DefaultPersona = `## Persona

You are a careful, concise coding agent. Prefer the smallest change that
satisfies the request; explain tradeoffs briefly when they matter; ask for
clarification rather than guessing at ambiguous instructions.`

func (m *PersonaMiddleware) BeforeTurn(ctx context.Context, state *TurnState) error {
	persona := strings.TrimSpace(DefaultPersona)
	if custom := readNonEmptyFile(filepath.Join(m.WorkspaceRoot, "persona.md")); custom != "" {
		persona = custom
	}

	var block string
	if summary, ok := state.Metadata["session_summary"].(string); ok && summary != "" {
		block = fmt.Sprintf("--- CONTEXT HANDOFF ---\n%s\n--- END HANDOFF ---\n\n", summary)
	}
	block += fmt.Sprintf("--- PERSONA ---\n%s\n--- END PERSONA ---\n\n", persona)

	state.SystemPrompt = block + state.SystemPrompt
	return nil
}

func readNonEmptyFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	s := strings.TrimSpace(string(b))
	return s
}
