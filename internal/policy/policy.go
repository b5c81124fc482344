// Package policy implements ExecutionPolicy: deciding whether
// a candidate shell invocation is allowed, via allow/deny lists, globs,
// regexes, and per-program argument validators.
package policy

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Rules is the immutable, once-loaded rule set.
type Rules struct {
	AllowList []string
	AllowGlob []string
	AllowRegex []string
	DenyList  []string
	DenyGlob  []string
	DenyRegex []string

	// Validators maps a program name to a per-program argument validator.
	Validators map[string]Validator

	// ShellMetacharsAllowed names tools explicitly marked
	// shell_expansion_allowed.
	ShellMetacharsAllowed map[string]bool
}

// Validator inspects argv (argv[0] is the program) beyond simple
// allow/deny matching, e.g. git's force-push/hard-reset check.
type Validator func(argv []string) (allowed bool, reason string)

// Decision is the outcome of evaluating one candidate invocation.
type Decision struct {
	Allowed bool
	Rule    string // which rule produced the decision, for diagnostics
}

var defaultDenyMetachars = regexp.MustCompile("[;|&`]|\\$\\(")

// unbalancedMetacharacters reports whether s contains a shell
// metacharacter that would trigger further shell interpretation
// (semicolon, pipe, background, backtick, or command substitution).
func unbalancedMetacharacters(s string) bool {
	return defaultDenyMetachars.MatchString(s)
}

// GitValidator rejects force-push and hard-reset subcommand/flag
// combinations while allowing the rest of git's subcommands.
func GitValidator(argv []string) (bool, string) {
	if len(argv) < 2 {
		return true, ""
	}
	sub := argv[1]
	for _, arg := range argv[2:] {
		switch sub {
		case "push":
			if arg == "-f" || strings.HasPrefix(arg, "--force") {
				return false, "git push --force denied"
			}
		case "reset":
			if arg == "--hard" {
				return false, "git reset --hard denied"
			}
		}
	}
	return true, ""
}

// AlwaysDenyValidator rejects every invocation of the program outright
// (used for rm, sudo, etc.).
func AlwaysDenyValidator(argv []string) (bool, string) {
	return false, argv[0] + " is always denied"
}

// DefaultRules returns the baseline rule set: git allowed except force
// push and hard reset, rm/sudo/chmod/chown/dd/mkfs/shutdown/reboot always
// denied, cargo/npm permitted with any args, well-known read-only tools
// auto-allowed.
func DefaultRules() Rules {
	return Rules{
		AllowList: []string{"cat", "ls", "grep", "head", "tail", "find", "echo", "git", "cargo", "npm", "go", "pwd"},
		DenyList:  []string{"rm", "sudo", "chmod", "chown", "dd", "mkfs", "shutdown", "reboot"},
		Validators: map[string]Validator{
			"git":      GitValidator,
			"rm":       AlwaysDenyValidator,
			"sudo":     AlwaysDenyValidator,
			"dd":       AlwaysDenyValidator,
			"mkfs":     AlwaysDenyValidator,
			"shutdown": AlwaysDenyValidator,
			"reboot":   AlwaysDenyValidator,
		},
	}
}

// Evaluate decides whether argv may execute: deny rules take precedence
// over allow rules on any tie. argv must be non-empty; an empty argv is
// always denied.
func (r Rules) Evaluate(argv []string) Decision {
	if len(argv) == 0 {
		return Decision{Allowed: false, Rule: "empty_argv"}
	}
	program := argv[0]
	joined := strings.Join(argv, " ")

	// 1. deny_list / deny_glob / deny_regex against program or joined argv.
	for _, d := range r.DenyList {
		if d == program {
			return Decision{Allowed: false, Rule: "deny_list:" + d}
		}
	}
	for _, g := range r.DenyGlob {
		if ok, _ := filepath.Match(g, program); ok {
			return Decision{Allowed: false, Rule: "deny_glob:" + g}
		}
	}
	for _, rx := range r.DenyRegex {
		if re, err := regexp.Compile(rx); err == nil && re.MatchString(joined) {
			return Decision{Allowed: false, Rule: "deny_regex:" + rx}
		}
	}

	// 2. shell metacharacter rejection unless explicitly allowed.
	if !r.ShellMetacharsAllowed[program] {
		for _, a := range argv {
			if unbalancedMetacharacters(a) {
				return Decision{Allowed: false, Rule: "shell_metacharacters"}
			}
		}
	}

	// 3. per-program validators.
	if v, ok := r.Validators[program]; ok {
		if allowed, reason := v(argv); !allowed {
			return Decision{Allowed: false, Rule: "validator:" + reason}
		}
	}

	// 4. allow_list / allow_glob / allow_regex; else heuristic fallback.
	for _, a := range r.AllowList {
		if a == program {
			return Decision{Allowed: true, Rule: "allow_list:" + a}
		}
	}
	for _, g := range r.AllowGlob {
		if ok, _ := filepath.Match(g, program); ok {
			return Decision{Allowed: true, Rule: "allow_glob:" + g}
		}
	}
	for _, rx := range r.AllowRegex {
		if re, err := regexp.Compile(rx); err == nil && re.MatchString(joined) {
			return Decision{Allowed: true, Rule: "allow_regex:" + rx}
		}
	}
	if isWellKnownReadOnly(program) {
		return Decision{Allowed: true, Rule: "heuristic:read_only"}
	}
	return Decision{Allowed: false, Rule: "no_matching_allow_rule"}
}

func isWellKnownReadOnly(program string) bool {
	switch program {
	case "cat", "ls", "grep", "head", "tail", "find", "pwd", "wc", "file", "stat":
		return true
	default:
		return false
	}
}
