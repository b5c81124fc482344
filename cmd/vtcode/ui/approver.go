// Package ui holds the terminal-facing pieces of the vtcode CLI: the
// scrolling input box and the approval dialog.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"vtcode/internal/core"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// Approver implements tools.ApprovalRequester over the terminal. The
// approval gate is synchronous (Pipeline blocks on Ask), so "approve for
// this session" is folded directly into the returned core.DecisionKind
// (DecisionApprovedSession) rather than surfaced as a separate flag. The
// pipeline keeps no per-session approval state: a session approval is
// counted in the ledger like a one-time approval, and later calls to the
// same tool are still prompted unless the ledger's auto-approve rule
// applies. An "always" answer lets later non-critical calls of that tool
// proceed without a prompt until a different decision is recorded.
type Approver struct {
	Reader *bufio.Reader
}

// NewApprover returns an Approver reading from stdin.
func NewApprover() *Approver {
	return &Approver{Reader: bufio.NewReader(os.Stdin)}
}

// Ask implements tools.ApprovalRequester.
func (a *Approver) Ask(ctx context.Context, j core.Justification) (core.DecisionKind, string, error) {
	fmt.Println()
	fmt.Println("\033[33m╭──────────────────────────────────────────────────────────╮\033[0m")
	fmt.Println("\033[33m│\033[0m  \033[1;33m⚠️  Tool Action Requires Approval\033[0m                        \033[33m│\033[0m")
	fmt.Println("\033[33m╰──────────────────────────────────────────────────────────╯\033[0m")
	fmt.Println()
	fmt.Printf("\033[1mTool:\033[0m %s\n", j.Tool)
	fmt.Printf("\033[1mRisk:\033[0m %s\n", j.RiskLevel)
	if j.Reason != "" {
		fmt.Printf("\033[1mReason:\033[0m %s\n", j.Reason)
	}
	if j.ExpectedOutcome != "" {
		fmt.Printf("\033[1mExpected outcome:\033[0m %s\n", j.ExpectedOutcome)
	}
	if j.ApprovalHistory != nil {
		h := j.ApprovalHistory
		fmt.Printf("\033[1mHistory:\033[0m %d approved, %d denied (rate %.0f%%)\n",
			h.ApproveCount, h.DenyCount, h.Rate()*100)
	}
	fmt.Println()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return a.interactive(j)
	}
	return a.simple(j)
}

func (a *Approver) interactive(j core.Justification) (core.DecisionKind, string, error) {
	model := initialApprovalModel(j)
	p := tea.NewProgram(model)

	final, err := p.Run()
	if err != nil {
		return a.simple(j)
	}
	m, ok := final.(approvalModel)
	if !ok || m.cancelled {
		return core.DecisionDenied, "cancelled", nil
	}
	return decisionFor(m.selected)
}

// approvalModel is the bubbletea model for the approve/deny/session/always
// picker, a four-option list matching core.DecisionKind's four variants.
type approvalModel struct {
	j         core.Justification
	options   []string
	selected  int
	cancelled bool
	chosen    bool
}

func initialApprovalModel(j core.Justification) approvalModel {
	return approvalModel{
		j:       j,
		options: []string{"Approve once", "Approve for this session", "Approve always for this tool", "Deny"},
	}
}

func (m approvalModel) Init() tea.Cmd { return nil }

func (m approvalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		} else {
			m.selected = len(m.options) - 1
		}
	case "down", "j":
		if m.selected < len(m.options)-1 {
			m.selected++
		} else {
			m.selected = 0
		}
	case "enter":
		m.chosen = true
		return m, tea.Quit
	}
	return m, nil
}

func (m approvalModel) View() string {
	var s strings.Builder
	for i, opt := range m.options {
		cursor := " "
		if m.selected == i {
			cursor = "❯"
		}
		if m.selected == i {
			s.WriteString(fmt.Sprintf("%s \033[1;36m%s\033[0m\n", cursor, opt))
		} else {
			s.WriteString(fmt.Sprintf("  \033[2m%s\033[0m\n", opt))
		}
	}
	return s.String()
}

func decisionFor(selected int) (core.DecisionKind, string, error) {
	switch selected {
	case 0:
		fmt.Println("\033[32m✓ Approved (once)\033[0m")
		return core.DecisionApprovedOnce, "user approved", nil
	case 1:
		fmt.Println("\033[32m✓ Approved for this session\033[0m")
		return core.DecisionApprovedSession, "user approved for session", nil
	case 2:
		fmt.Println("\033[34m✓ Approved always for this tool\033[0m")
		return core.DecisionApprovedAlways, "user approved always", nil
	default:
		fmt.Println("\033[31m✗ Denied\033[0m")
		return core.DecisionDenied, "user denied", nil
	}
}

// simple is the non-interactive fallback for piped stdin.
func (a *Approver) simple(j core.Justification) (core.DecisionKind, string, error) {
	fmt.Println("  (o)nce  |  (s)ession  |  (A)lways  |  (d)eny")
	fmt.Print("\nChoice [o/s/A/d]: ")

	line, err := a.Reader.ReadString('\n')
	if err != nil {
		return core.DecisionDenied, "read error", err
	}
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "o", "once":
		return core.DecisionApprovedOnce, "user approved", nil
	case "s", "session":
		return core.DecisionApprovedSession, "user approved for session", nil
	case "d", "deny", "n", "no":
		return core.DecisionDenied, "user denied", nil
	case "", "a", "always", "yes", "y":
		return core.DecisionApprovedAlways, "user approved always", nil
	default:
		return core.DecisionApprovedOnce, "defaulted to approve-once", nil
	}
}
