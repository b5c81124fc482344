// Package config loads VT Code's configuration: a YAML document over
// built-in defaults, plus .env loading into the process environment via
// godotenv. No configuration key is overridden from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Policy mirrors the policy.* configuration keys.
type Policy struct {
	AllowList  []string          `yaml:"allow_list"`
	AllowGlob  []string          `yaml:"allow_glob"`
	AllowRegex []string          `yaml:"allow_regex"`
	DenyList   []string          `yaml:"deny_list"`
	DenyGlob   []string          `yaml:"deny_glob"`
	DenyRegex  []string          `yaml:"deny_regex"`
	Tools      map[string]string `yaml:"tools"` // name -> allow|prompt|deny
}

// Limits mirrors the limits.* configuration keys.
type Limits struct {
	TurnRoundsMax          int `yaml:"turn_rounds_max"`
	ConsecutiveFailuresMax int `yaml:"consecutive_failures_max"`
	PerToolTimeoutSecs     int `yaml:"per_tool_timeout_secs"`
}

// Approval mirrors the approval.* configuration keys.
type Approval struct {
	LearningEnabled      bool    `yaml:"learning_enabled"`
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold"`
	MinApprovalsForAuto  int     `yaml:"min_approvals_for_auto"`
}

// Cache mirrors the cache.* configuration keys.
type Cache struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

// Context mirrors the context.* configuration keys.
type Context struct {
	MaxTokens              int `yaml:"max_tokens"`
	ReservedResponseTokens int `yaml:"reserved_response_tokens"`
}

// Agent mirrors the agent.* configuration keys.
type Agent struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Workspace mirrors the workspace.* configuration keys.
type Workspace struct {
	AdditionalWritableRoots []string `yaml:"additional_writable_roots"`
}

// Config is the fully parsed configuration object handed to the core at
// session construction.
type Config struct {
	Agent     Agent     `yaml:"agent"`
	Context   Context   `yaml:"context"`
	Policy    Policy    `yaml:"policy"`
	Limits    Limits    `yaml:"limits"`
	Workspace Workspace `yaml:"workspace"`
	Approval  Approval  `yaml:"approval"`
	Cache     Cache     `yaml:"cache"`
}

// Defaults returns a Config populated with the documented defaults
// (round cap 25, consecutive failures 3, per-tool timeout 30s, etc.).
func Defaults() Config {
	return Config{
		Agent: Agent{Provider: "openai"},
		Context: Context{
			MaxTokens:              128000,
			ReservedResponseTokens: 8000,
		},
		Limits: Limits{
			TurnRoundsMax:          25,
			ConsecutiveFailuresMax: 3,
			PerToolTimeoutSecs:     30,
		},
		Approval: Approval{
			LearningEnabled:      true,
			AutoApproveThreshold: 0.80,
			MinApprovalsForAuto:  3,
		},
		Cache: Cache{
			TTLSeconds: 120,
			MaxEntries: 1000,
		},
	}
}

// Load first loads dotenvPath (if present) into the process environment
// without overriding variables already set, then reads and parses
// configPath (if non-empty and present) over Defaults().
func Load(configPath, dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return Config{}, fmt.Errorf("load dotenv %s: %w", dotenvPath, err)
			}
		}
	}

	cfg := Defaults()
	if configPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	return cfg, nil
}
