// Package workspace implements WorkspaceGuard: canonicalizing a
// candidate path and asserting it lies within one of the session's
// workspace bounds, symlink-aware so a symlink cannot be used to escape
// the sandbox.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Bounds is the canonical root plus any additional writable roots a path
// may resolve under.
type Bounds struct {
	Root                    string
	AdditionalWritableRoots []string
}

// Guard resolves and validates paths against Bounds.
type Guard struct {
	bounds  Bounds
	roots   []string // canonicalized (EvalSymlinks'd) roots
}

// NewGuard canonicalizes bounds' roots eagerly; returns an error if the
// primary root does not exist or cannot be resolved.
func NewGuard(bounds Bounds) (*Guard, error) {
	rootAbs, err := filepath.Abs(bounds.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	rootAbs = filepath.Clean(rootAbs)
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return nil, fmt.Errorf("workspace root does not exist: %w", err)
	}
	roots := []string{rootReal}
	for _, extra := range bounds.AdditionalWritableRoots {
		extraAbs, err := filepath.Abs(extra)
		if err != nil {
			continue
		}
		extraReal, err := filepath.EvalSymlinks(filepath.Clean(extraAbs))
		if err != nil {
			// Additional roots need not pre-exist; fall back to the
			// cleaned absolute form so later-created paths still match.
			extraReal = filepath.Clean(extraAbs)
		}
		roots = append(roots, extraReal)
	}
	return &Guard{bounds: bounds, roots: roots}, nil
}

// ErrWorkspaceEscape is returned when a candidate path resolves outside
// every configured root.
var ErrWorkspaceEscape = errors.New("path escapes workspace bounds")

// Resolve canonicalizes userPath (relative paths are joined against the
// primary root) and asserts the result has one of Guard's roots as a
// prefix, following symlinks both for existing targets and for the
// nearest existing ancestor of a not-yet-created target. Mirrors
// tools/path.go's resolvePathInWorkspace.
func (g *Guard) Resolve(userPath string) (string, error) {
	if userPath == "" {
		userPath = "."
	}

	var targetAbs string
	if filepath.IsAbs(userPath) {
		targetAbs = filepath.Clean(userPath)
	} else {
		targetAbs = filepath.Clean(filepath.Join(g.bounds.Root, userPath))
	}

	if !g.withinAnyRoot(targetAbs) {
		return "", ErrWorkspaceEscape
	}

	if real, err := filepath.EvalSymlinks(targetAbs); err == nil {
		if !g.withinAnyRoot(real) {
			return "", fmt.Errorf("%w: escapes via symlink", ErrWorkspaceEscape)
		}
		return real, nil
	}

	// Target doesn't exist yet: walk up to the nearest existing ancestor,
	// resolve that, and reconstruct the target beneath its real path.
	parent := filepath.Dir(targetAbs)
	for {
		real, err := filepath.EvalSymlinks(parent)
		if err == nil {
			suffix, relErr := filepath.Rel(parent, targetAbs)
			if relErr != nil || suffix == ".." || len(suffix) >= 3 && suffix[:3] == "../" {
				return "", fmt.Errorf("%w: invalid relative suffix", ErrWorkspaceEscape)
			}
			reconstructed := filepath.Join(real, suffix)
			if !g.withinAnyRoot(reconstructed) {
				return "", fmt.Errorf("%w: escapes via symlink", ErrWorkspaceEscape)
			}
			return reconstructed, nil
		}
		next := filepath.Dir(parent)
		if next == parent {
			return "", fmt.Errorf("no existing ancestor found for %s", targetAbs)
		}
		parent = next
	}
}

func (g *Guard) withinAnyRoot(target string) bool {
	for _, root := range g.roots {
		if pathWithinRoot(root, target) {
			return true
		}
	}
	return false
}

func pathWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
