package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"vtcode/internal/core"
)

// TrajectoryLog is the append-only event log at
// <workspace>/.vtcode/trajectory.jsonl, one serialized core.Event per
// line. It implements core.Sink directly so it can be chained alongside
// the UI sink with no scheduler changes. VT Code runs one session per
// process, so a single file suffices rather than one per session.
type TrajectoryLog struct {
	path string
	mu   sync.Mutex
}

// NewTrajectoryLog opens (creating if necessary) the trajectory file
// under workspaceRoot.
func NewTrajectoryLog(workspaceRoot string) (*TrajectoryLog, error) {
	dir := filepath.Join(workspaceRoot, ".vtcode")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create .vtcode dir: %w", err)
	}
	return &TrajectoryLog{path: filepath.Join(dir, "trajectory.jsonl")}, nil
}

// Emit implements core.Sink. A marshal or write failure is swallowed
// since the log itself has no error-reporting path back to the emitter;
// Replay is the way to notice a gap after the fact.
func (t *TrajectoryLog) Emit(e core.Event) {
	_ = t.append(e)
}

func (t *TrajectoryLog) append(e core.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trajectory log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Replay reads every event previously appended, in order, for post-mortem
// inspection. Session resume reads Store snapshots, not this log.
func (t *TrajectoryLog) Replay() ([]core.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trajectory log: %w", err)
	}
	defer f.Close()

	var events []core.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e core.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("scan trajectory log: %w", err)
	}
	return events, nil
}
