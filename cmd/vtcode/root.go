package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"vtcode/internal/config"
	"vtcode/internal/obslog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	modelFlag       string
	providerFlag    string
	autoApproveFlag bool
	configPathFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "vtcode",
	Short: "VT Code - a terminal coding agent",
	Long: `VT Code drives an LLM through a tool-calling turn loop against your
workspace, gating filesystem and process side effects behind policy and
human approval.

Global Flags:
  --model          model name override (provider-specific default otherwise)
  --provider       anthropic | openai | mock (default: from config)
  --auto-approve   skip interactive approval prompts (session auto-approve)
  --config         path to vtcode.yaml (default: ./vtcode.yaml)`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model name override")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "anthropic | openai | mock")
	rootCmd.PersistentFlags().BoolVar(&autoApproveFlag, "auto-approve", false, "skip interactive approval prompts")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "vtcode.yaml", "path to config file")
	rootCmd.AddCommand(chatCmd)
}

// Execute loads the environment, initializes the file logger, and
// dispatches to cobra. There is no program-name smart routing: vtcode
// starts in chat mode when invoked with no arguments at all. Global flags
// given without the chat subcommand make cobra print the help text.
func Execute() {
	_ = godotenv.Load(".env")

	logPath := fmt.Sprintf("workspace/logs/%s.log", time.Now().Format("20060102"))
	level := obslog.INFO
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = obslog.DEBUG
	case "WARN":
		level = obslog.WARN
	case "ERROR":
		level = obslog.ERROR
	}
	if err := obslog.Init(logPath, level, "vtcode"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}
	obslog.Info("system", "vtcode starting")

	if len(os.Args) == 1 {
		runChat(chatCmd, nil)
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves cfg from configPathFlag, falling back to
// config.Defaults() when no file is present, then applies CLI overrides.
func loadConfig() config.Config {
	cfg, err := config.Load(configPathFlag, ".env")
	if err != nil {
		cfg = config.Defaults()
	}
	if providerFlag != "" {
		cfg.Agent.Provider = providerFlag
	}
	return cfg
}

func resolveWorkspaceRootOrExit() string {
	root, err := resolveWorkspaceRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving workspace root: %v\n", err)
		os.Exit(1)
	}
	return root
}
