package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vtcode/internal/core"
	"vtcode/internal/workspace"
)

func guardFor(tc *ToolContext) (*workspace.Guard, error) {
	return workspace.NewGuard(workspace.Bounds{Root: tc.WorkspaceRoot})
}

// ReadFileTool reads a file's contents from within the workspace.
type ReadFileTool struct{ BaseTool }

func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{NewBaseTool("read_file", "Read a file's contents", []ParameterDef{
		{Name: "path", Type: "string", Description: "workspace-relative path", Required: true},
	}, core.RiskLow, core.SideEffects{ReadsFS: true})}
}

func (t *ReadFileTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	g, err := guardFor(tc)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	path := GetString(args, "path", "")
	resolved, err := g.Resolve(path)
	if err != nil {
		return failure(core.FailureWorkspaceBounds, err), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	return successResult(string(data)), nil
}

// WriteFileTool writes (overwriting) a file's full contents.
type WriteFileTool struct{ BaseTool }

func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{NewBaseTool("write_file", "Write a file's full contents, creating it if absent", []ParameterDef{
		{Name: "path", Type: "string", Description: "workspace-relative path", Required: true},
		{Name: "content", Type: "string", Description: "full file contents", Required: true},
	}, core.RiskHigh, core.SideEffects{WritesFS: true})}
}

func (t *WriteFileTool) Preview(ctx context.Context, args Args) (*Preview, error) {
	path := GetString(args, "path", "")
	return &Preview{Kind: PreviewDiff, Summary: "write " + path, Affected: []string{path}}, nil
}

func (t *WriteFileTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	g, err := guardFor(tc)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	path := GetString(args, "path", "")
	content := GetString(args, "content", "")
	resolved, err := g.Resolve(path)
	if err != nil {
		return failure(core.FailureWorkspaceBounds, err), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return failure(core.FailureIO, err), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return failure(core.FailureIO, err), nil
	}
	if tc.RecordModifiedFile != nil {
		tc.RecordModifiedFile(path)
	}
	return successResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path), path), nil
}

// EditFileTool performs a single exact string replacement within a file.
type EditFileTool struct{ BaseTool }

func NewEditFileTool() *EditFileTool {
	return &EditFileTool{NewBaseTool("edit_file", "Replace an exact substring in a file", []ParameterDef{
		{Name: "path", Type: "string", Description: "workspace-relative path", Required: true},
		{Name: "old_string", Type: "string", Description: "exact text to replace", Required: true},
		{Name: "new_string", Type: "string", Description: "replacement text", Required: true},
	}, core.RiskHigh, core.SideEffects{WritesFS: true, ReadsFS: true})}
}

func (t *EditFileTool) Preview(ctx context.Context, args Args) (*Preview, error) {
	path := GetString(args, "path", "")
	return &Preview{Kind: PreviewDiff, Summary: "edit " + path, Affected: []string{path}}, nil
}

func (t *EditFileTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	g, err := guardFor(tc)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	path := GetString(args, "path", "")
	oldStr := GetString(args, "old_string", "")
	newStr := GetString(args, "new_string", "")
	resolved, err := g.Resolve(path)
	if err != nil {
		return failure(core.FailureWorkspaceBounds, err), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	content := string(data)
	count := strings.Count(content, oldStr)
	if count == 0 {
		return failuref(core.FailureParse, "old_string not found in %s", path), nil
	}
	if count > 1 {
		return failuref(core.FailureParse, "old_string is not unique in %s (%d occurrences)", path, count), nil
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return failure(core.FailureIO, err), nil
	}
	if tc.RecordModifiedFile != nil {
		tc.RecordModifiedFile(path)
	}
	return successResult("edited "+path, path), nil
}

// ListDirTool lists directory entries.
type ListDirTool struct{ BaseTool }

func NewListDirTool() *ListDirTool {
	return &ListDirTool{NewBaseTool("list_dir", "List directory entries", []ParameterDef{
		{Name: "path", Type: "string", Description: "workspace-relative directory", Required: false},
	}, core.RiskLow, core.SideEffects{ReadsFS: true})}
}

func (t *ListDirTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	g, err := guardFor(tc)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	path := GetString(args, "path", ".")
	resolved, err := g.Resolve(path)
	if err != nil {
		return failure(core.FailureWorkspaceBounds, err), nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			b.WriteString(e.Name() + "/\n")
		} else {
			b.WriteString(e.Name() + "\n")
		}
	}
	return successResult(b.String()), nil
}

// GlobTool matches files against a glob pattern rooted at the workspace.
type GlobTool struct{ BaseTool }

func NewGlobTool() *GlobTool {
	return &GlobTool{NewBaseTool("glob", "Find files matching a glob pattern", []ParameterDef{
		{Name: "pattern", Type: "string", Description: "glob pattern matched against workspace-relative paths, e.g. *.go or cmd/*.go; * does not cross directory separators", Required: true},
	}, core.RiskLow, core.SideEffects{ReadsFS: true})}
}

func (t *GlobTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	pattern := GetString(args, "pattern", "")
	var matches []string
	err := filepath.WalkDir(tc.WorkspaceRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(tc.WorkspaceRoot, p)
		if relErr != nil {
			return nil
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	sort.Strings(matches)
	return successResult(strings.Join(matches, "\n")), nil
}

// GrepTool searches file contents for a substring.
type GrepTool struct{ BaseTool }

func NewGrepTool() *GrepTool {
	return &GrepTool{NewBaseTool("grep", "Search file contents for a literal substring", []ParameterDef{
		{Name: "query", Type: "string", Description: "text to search for", Required: true},
		{Name: "path", Type: "string", Description: "workspace-relative directory to search", Required: false},
	}, core.RiskLow, core.SideEffects{ReadsFS: true})}
}

func (t *GrepTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	g, err := guardFor(tc)
	if err != nil {
		return failure(core.FailureIO, err), nil
	}
	query := GetString(args, "query", "")
	path := GetString(args, "path", ".")
	root, err := g.Resolve(path)
	if err != nil {
		return failure(core.FailureWorkspaceBounds, err), nil
	}
	var b strings.Builder
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		f, ferr := os.Open(p)
		if ferr != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if strings.Contains(scanner.Text(), query) {
				rel, _ := filepath.Rel(tc.WorkspaceRoot, p)
				fmt.Fprintf(&b, "%s:%d:%s\n", rel, lineNo, scanner.Text())
			}
		}
		return nil
	})
	return successResult(b.String()), nil
}

// RunCommandTool executes a program (argv form, no shell interpretation)
// under ExecutionPolicy, mirroring tools/shell.go's capped-output,
// timeout-bounded execution.
type RunCommandTool struct {
	BaseTool
	Timeout        time.Duration
	MaxOutputBytes int
}

func NewRunCommandTool() *RunCommandTool {
	return &RunCommandTool{
		BaseTool: NewBaseTool("run_command", "Execute a command (argv form) in the workspace", []ParameterDef{
			{Name: "argv", Type: "array", Description: "program and arguments", Required: true, Items: map[string]any{"type": "string"}},
			{Name: "timeout_secs", Type: "integer", Description: "override timeout in seconds", Required: false},
		}, core.RiskHigh, core.SideEffects{ExecutesProc: true}),
		Timeout:        30 * time.Second,
		MaxOutputBytes: 10 * 1024 * 1024,
	}
}

func (t *RunCommandTool) Preview(ctx context.Context, args Args) (*Preview, error) {
	argv := GetStringSlice(args, "argv")
	return &Preview{Kind: PreviewCommand, Summary: strings.Join(argv, " "), Content: strings.Join(argv, " ")}, nil
}

func (t *RunCommandTool) Execute(ctx context.Context, args Args, tc *ToolContext) (core.ToolResult, error) {
	argv := GetStringSlice(args, "argv")
	if len(argv) == 0 {
		return failuref(core.FailurePolicyDenied, "empty argv"), nil
	}
	timeout := t.Timeout
	if secs := GetInt(args, "timeout_secs", 0); secs > 0 {
		d := time.Duration(secs) * time.Second
		if d < timeout {
			timeout = d
		}
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Dir = tc.WorkspaceRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		return core.ToolResult{Status: core.StatusTimeout, ElapsedMS: elapsed.Milliseconds()}, nil
	}

	output := capOutput(stdout.String(), t.MaxOutputBytes)
	errOutput := capOutput(stderr.String(), t.MaxOutputBytes)
	if errOutput != "" {
		output += "\n[stderr] " + strings.ReplaceAll(errOutput, "\n", "\n[stderr] ")
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return core.ToolResult{
				Status:  core.StatusFailure,
				Kind:    core.FailureChildExitNonzero,
				Message: fmt.Sprintf("exit code %d\n%s", exitErr.ExitCode(), output),
			}, nil
		}
		return failure(core.FailureIO, runErr), nil
	}
	return successResult(output), nil
}

func capOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n...[truncated]"
}
