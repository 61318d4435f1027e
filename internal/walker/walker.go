// Package walker finds candidate repository directories beneath a set
// of search roots.
//
// The walk uses an explicit LIFO frontier rather than filepath.WalkDir
// so that matched directories can be treated as leaves: a directory
// whose base name equals the marker (".git" by default) is reported
// and never descended into. Traversal is deliberately synchronous
// blocking I/O; the walker is a single producer feeding concurrent
// consumers downstream.
package walker

import (
	"context"
	"log"
	"os"
	"path/filepath"
)

// Walker lazily produces directories whose base name matches Marker,
// starting from the configured roots. It is consumable once and must
// be driven from a single goroutine.
type Walker struct {
	// Marker is the directory base name identifying a repository root.
	Marker string

	// Follow enables symbolic link traversal. The resolved target of a
	// followed link is pushed back onto the frontier; the link itself
	// is never reported as a match.
	Follow bool

	// Ignore holds paths excluded from the walk. Membership is exact
	// path match only, not prefix or glob: an ignored path's subtree
	// is never explored, but a path merely prefixed by an ignored one
	// is still walked.
	Ignore map[string]struct{}

	// Logger receives non-fatal traversal diagnostics.
	Logger *log.Logger

	frontier []string
	// visited tracks resolved symlink targets so a link cycle
	// terminates instead of looping.
	visited map[string]struct{}
}

// New returns a Walker seeded with the given roots.
func New(roots []string, marker string, follow bool, ignore []string) *Walker {
	ignoreSet := make(map[string]struct{}, len(ignore))
	for _, p := range ignore {
		ignoreSet[p] = struct{}{}
	}

	// LIFO pop order: reverse so the first root is explored first.
	frontier := make([]string, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		frontier = append(frontier, roots[i])
	}

	return &Walker{
		Marker:   marker,
		Follow:   follow,
		Ignore:   ignoreSet,
		Logger:   log.New(os.Stderr, "[walker] ", log.LstdFlags),
		frontier: frontier,
		visited:  make(map[string]struct{}),
	}
}

// Next returns the next matching directory, or ok=false when the walk
// is exhausted. Unreadable paths are logged and skipped; nothing the
// walker encounters is fatal.
func (w *Walker) Next() (string, bool) {
	for len(w.frontier) > 0 {
		path := w.frontier[len(w.frontier)-1]
		w.frontier = w.frontier[:len(w.frontier)-1]

		if _, ok := w.Ignore[path]; ok {
			continue
		}

		info, err := os.Lstat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.Logger.Printf("Failed to read metadata for %s: %v", path, err)
			}
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !w.Follow {
				continue
			}
			target, err := w.resolveLink(path)
			if err != nil {
				w.Logger.Printf("Failed to read link %s: %v", path, err)
				continue
			}
			if _, seen := w.visited[target]; seen {
				continue
			}
			w.visited[target] = struct{}{}
			w.frontier = append(w.frontier, target)
			continue
		}

		if !info.IsDir() {
			continue
		}

		if filepath.Base(path) == w.Marker {
			return path, true
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			w.Logger.Printf("Failed to read directory %s: %v", path, err)
			continue
		}
		for _, entry := range entries {
			w.frontier = append(w.frontier, filepath.Join(path, entry.Name()))
		}
	}
	return "", false
}

// resolveLink reads a symlink and anchors a relative target at the
// link's parent directory.
func (w *Walker) resolveLink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}

// Run drains the walk into out, stopping early if ctx is cancelled.
// It closes out before returning.
func (w *Walker) Run(ctx context.Context, out chan<- string) {
	defer close(out)
	for {
		dir, ok := w.Next()
		if !ok {
			return
		}
		select {
		case out <- dir:
		case <-ctx.Done():
			return
		}
	}
}
