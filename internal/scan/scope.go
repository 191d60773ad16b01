package scan

import (
	"log/slog"
	"os"
	"strings"

	"github.com/twinscan/twinscan/internal/config"
)

// DirExists is the default existence check used when validating scope lists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ResolveScope applies the configured scan scope to the complete path list.
//
// Scope entries whose folder no longer exists are pruned; when pruning
// occurred, prune is called with the surviving list (to persist it) and
// notice with the removal count (a one-time user-visible message). If the
// validated list ends up empty the scope degrades to full — scope state is
// never allowed to silently exclude everything.
//
// exists, prune and notice may be nil (defaults: DirExists, no-op, no-op).
func ResolveScope(
	paths []string,
	scope config.ScanScope,
	exists func(string) bool,
	prune func(valid []string) error,
	notice func(removed int),
) (filtered []string, effectiveMode string) {
	if exists == nil {
		exists = DirExists
	}

	if scope.Mode == config.ScopeFull || scope.Mode == "" {
		return paths, config.ScopeFull
	}

	valid := make([]string, 0, len(scope.Paths))
	for _, p := range scope.Paths {
		if exists(p) {
			valid = append(valid, p)
		}
	}

	if removed := len(scope.Paths) - len(valid); removed > 0 {
		slog.Info("scope list pruned", "mode", scope.Mode, "removed", removed)
		if prune != nil {
			if err := prune(valid); err != nil {
				slog.Warn("persist pruned scope list", "error", err)
			}
		}
		if notice != nil {
			notice(removed)
		}
	}

	if len(valid) == 0 {
		return paths, config.ScopeFull
	}

	keepMatches := scope.Mode == config.ScopeInclude
	filtered = make([]string, 0, len(paths))
	for _, p := range paths {
		if matchesAnyPrefix(p, valid) == keepMatches {
			filtered = append(filtered, p)
		}
	}
	return filtered, scope.Mode
}

func matchesAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
