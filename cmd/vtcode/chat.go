package main

import (
	"context"
	"fmt"
	"strings"

	"vtcode/cmd/vtcode/ui"
	"vtcode/internal/core"
	"vtcode/internal/session"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Start an interactive coding session",
	Run:   runChat,
}

// runChat is the interactive REPL. The tool pipeline blocks synchronously
// on approval, so a turn is a single scheduler.RunTurn call rather than a
// stream to pump with a separate resume step.
func runChat(cmd *cobra.Command, args []string) {
	workspaceRoot := resolveWorkspaceRootOrExit()
	cfg := loadConfig()

	eng, err := newEngine(cfg, workspaceRoot, modelFlag)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		return
	}
	if autoApproveFlag {
		eng.approver.enableAll()
	}

	ctx := context.Background()
	sessionID := "default"
	if len(args) > 0 {
		sessionID = args[0]
		if snap, err := eng.sessionStore.Get(sessionID); err == nil {
			for _, m := range snap.History {
				eng.history.Append(m)
			}
			fmt.Printf("\nResumed session '%s' (%d messages).\n", sessionID, len(snap.History))
		} else {
			fmt.Printf("Session '%s' not found, starting a new one.\n", sessionID)
		}
	}

	fmt.Printf("\nvtcode - session '%s'. Type /help for commands.\n", sessionID)

	historyMgr, err := newHistoryManager(workspaceRoot)
	if err != nil {
		fmt.Printf("Warning: failed to initialize input history: %v\n", err)
	}
	var inputHistory []string
	if historyMgr != nil {
		if stored, err := historyMgr.Load(); err == nil {
			inputHistory = stored
		}
	}

	turnN := 0
	for {
		in, err := ui.ReadInputWithHistory("\n> ", inputHistory)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			break
		}
		if in.Cancelled {
			break
		}

		text := strings.TrimSpace(in.Value)
		if text == "" {
			continue
		}

		if len(inputHistory) == 0 || inputHistory[len(inputHistory)-1] != text {
			inputHistory = append(inputHistory, text)
			if historyMgr != nil {
				_ = historyMgr.Append(text)
			}
		}

		if handled := handleSlashCommand(eng, sessionID, text); handled {
			if text == "/quit" || text == "/exit" || text == "/q" {
				break
			}
			continue
		}

		eng.history.Append(core.Message{
			Role:  core.RoleUser,
			Parts: []core.MessagePart{{Kind: core.PartText, Text: text}},
		})

		turnN++
		turnID := fmt.Sprintf("%s-%d", sessionID, turnN)

		eng.turnState.SystemPrompt = ""
		if err := eng.chain.BeforeTurn(ctx, eng.turnState); err != nil {
			fmt.Printf("\n⚠️  middleware error: %v\n", err)
			continue
		}

		turnCtx, cancelTurn := context.WithCancel(ctx)
		cleanup := monitorCancellation(turnCtx, cancelTurn)
		outcome := eng.scheduler.RunTurn(turnCtx, turnID, eng.turnState.SystemPrompt, eng.history)
		cleanup()
		cancelTurn()

		_ = eng.chain.AfterTurn(ctx, eng.turnState, outcome)

		if outcome.Kind != core.OutcomeCompleted {
			fmt.Printf("\n⚠️  turn ended: %s (%s)\n", outcome.Kind, outcome.Reason)
		}

		if err := eng.sessionStore.Put(session.Snapshot{
			ID:            sessionID,
			WorkspaceRoot: workspaceRoot,
			History:       eng.history.Messages(),
		}); err != nil {
			fmt.Printf("\nWarning: failed to persist session: %v\n", err)
		}
	}

	fmt.Println("\nGoodbye.")
}

// handleSlashCommand processes vtcode's chat-local commands. Returns true
// if text was a recognized command (handled, whether or not it requires
// the caller to break the loop).
func handleSlashCommand(eng *engine, sessionID, text string) bool {
	switch {
	case text == "/quit" || text == "/exit" || text == "/q":
		return true

	case text == "/help" || text == "/?":
		fmt.Println("\nCommands:")
		fmt.Println("  /approve-all   Approve every remaining tool call for this session")
		fmt.Println("  /resume        List saved sessions")
		fmt.Println("  /help          Show this help")
		fmt.Println("  /quit          Exit")
		return true

	case text == "/approve-all":
		eng.approver.enableAll()
		fmt.Println("\n✅ Auto-approving every remaining tool call for this session.")
		return true

	case strings.HasPrefix(text, "/resume"):
		ids, err := eng.sessionStore.List()
		if err != nil {
			fmt.Printf("\n⚠️  could not list sessions: %v\n", err)
			return true
		}
		fmt.Println("\nSessions:")
		for i, id := range ids {
			marker := "  "
			if id == sessionID {
				marker = "* "
			}
			fmt.Printf("%s%d. %s\n", marker, i+1, id)
		}
		fmt.Println("Restart with `vtcode chat <session-id>` to resume one of these.")
		return true
	}
	return false
}
