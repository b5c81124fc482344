package approval

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vtcode/internal/core"
)

const header = "| tool | approve_count | deny_count | last_decision | last_reason | updated_at |"
const separator = "|---|---|---|---|---|---|"

// Load reads the markdown table at s.path, returning an empty pattern map
// if the file does not yet exist. Aggregate counts are the source of
// truth, reloaded verbatim on session start.
func (s *Store) Load() (map[string]*core.ApprovalPattern, error) {
	patterns := make(map[string]*core.ApprovalPattern)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return patterns, nil
		}
		return nil, fmt.Errorf("read approval store: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == header || line == separator || !strings.HasPrefix(line, "|") {
			continue
		}
		cols := splitRow(line)
		if len(cols) != 6 {
			continue
		}
		approveCount, _ := strconv.Atoi(cols[1])
		denyCount, _ := strconv.Atoi(cols[2])
		updated, _ := time.Parse(time.RFC3339, cols[5])
		patterns[cols[0]] = &core.ApprovalPattern{
			Tool:         cols[0],
			ApproveCount: approveCount,
			DenyCount:    denyCount,
			LastDecision: core.Decision{Tool: cols[0], Kind: core.DecisionKind(cols[3]), Timestamp: updated},
			LastReason:   cols[4],
		}
	}
	return patterns, nil
}

// Save atomically rewrites the markdown table (temp file + rename).
func (s *Store) Save(patterns map[string]*core.ApprovalPattern) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create approval store dir: %w", err)
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(separator + "\n")
	for _, row := range toRows(patterns) {
		updated := ""
		if !row.UpdatedAt.IsZero() {
			updated = row.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %s | %s | %s |\n",
			row.Tool, row.ApproveCount, row.DenyCount, row.LastDecision, escapeCell(row.LastReason), updated)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write approval store tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename approval store: %w", err)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

func splitRow(line string) []string {
	trimmed := strings.TrimPrefix(line, "|")
	if strings.HasSuffix(trimmed, "|") && !strings.HasSuffix(trimmed, "\\|") {
		trimmed = strings.TrimSuffix(trimmed, "|")
	}
	var out []string
	var cur strings.Builder
	for i := 0; i < len(trimmed); i++ {
		switch {
		case trimmed[i] == '\\' && i+1 < len(trimmed) && trimmed[i+1] == '|':
			cur.WriteByte('|')
			i++
		case trimmed[i] == '|':
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(trimmed[i])
		}
	}
	return append(out, strings.TrimSpace(cur.String()))
}
