// Package gitprobe extracts repository facts by invoking the git
// binary. It implements the inspector boundary the pipeline consumes:
// a cheap probe for filesystem candidates and a full inspection that
// returns branches (with their root commits), remotes, and the
// repository description.
//
// Network locations are inspected by cloning the repository bare into
// a scoped temporary directory with interactive credential prompting
// disabled, inspecting it exactly like a filesystem git directory, and
// removing the temporary directory unconditionally.
package gitprobe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/repoatlas/repoatlas/internal/atlas"
)

// noPromptEnv disables every interactive credential path git knows
// about so a clone against a private remote fails fast instead of
// hanging on a prompt.
var noPromptEnv = []string{
	"GIT_TERMINAL_PROMPT=0",
	"GIT_ASKPASS=true",
	"GIT_SSH_COMMAND=ssh -oBatchMode=yes",
}

// Runner executes one external command and returns its stdout.
// Production code uses execRunner; tests substitute fake git output.
type Runner func(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error)

// execRunner is the default Runner backed by os/exec.
func execRunner(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %s failed: %w\n%s",
				name, strings.Join(args, " "), err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}

	return output, nil
}

// Prober inspects locations with the git binary.
type Prober struct {
	// Logger receives per-location diagnostics for failed commands.
	Logger *log.Logger

	run Runner
}

// New returns a Prober that shells out to git.
func New() *Prober {
	return NewWithRunner(execRunner)
}

// NewWithRunner returns a Prober with a custom command runner (for tests).
func NewWithRunner(run Runner) *Prober {
	return &Prober{
		Logger: log.New(os.Stderr, "[gitprobe] ", log.LstdFlags),
		run:    run,
	}
}

// Probe reports whether dir is a usable git directory. It is a cheap
// check; failures are not distinguished from "not a repository".
func (p *Prober) Probe(ctx context.Context, dir string) bool {
	_, err := p.run(ctx, nil, "git", "--git-dir="+dir, "rev-parse", "--git-dir")
	return err == nil
}

// Inspect extracts Facts for the given location. For KindFs the
// directory is read in place; for KindNet the address is cloned bare
// into a temporary directory first. A non-nil error means inspection
// failed; callers persist the failure as a View with nil Facts.
func (p *Prober) Inspect(ctx context.Context, loc atlas.Location) (*atlas.Facts, error) {
	switch loc.Kind {
	case atlas.KindFs:
		return p.inspectGitDir(ctx, loc.Dir)
	case atlas.KindNet:
		return p.inspectRemote(ctx, loc.Addr)
	default:
		return nil, fmt.Errorf("unknown location kind %q", loc.Kind)
	}
}

// inspectRemote clones addr bare into a self-cleaning temp directory
// and inspects the clone as a filesystem git directory.
func (p *Prober) inspectRemote(ctx context.Context, addr string) (*atlas.Facts, error) {
	tmp, err := os.MkdirTemp("", "repoatlas-clone-")
	if err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	cloneDir := filepath.Join(tmp, "repo.git")
	if _, err := p.run(ctx, noPromptEnv, "git", "clone", "--bare", "--", addr, cloneDir); err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", addr, err)
	}

	return p.inspectGitDir(ctx, cloneDir)
}

// inspectGitDir gathers all facts for one git directory. Any command
// failure or malformed output fails the whole inspection.
func (p *Prober) inspectGitDir(ctx context.Context, dir string) (*atlas.Facts, error) {
	bare, err := p.isBare(ctx, dir)
	if err != nil {
		return nil, err
	}

	heads, err := p.heads(ctx, dir)
	if err != nil {
		return nil, err
	}

	var roots []string
	if len(heads) > 0 {
		roots, err = p.roots(ctx, dir)
		if err != nil {
			return nil, err
		}
		if len(roots) == 0 {
			return nil, fmt.Errorf("%s: branches exist but no root commits found", dir)
		}
	}

	remotes, err := p.remotes(ctx, dir)
	if err != nil {
		return nil, err
	}

	branches := make(map[string]atlas.Branch, len(heads))
	for name, leaf := range heads {
		branches[name] = atlas.Branch{
			Roots: append([]string(nil), roots...),
			Leaf:  leaf,
		}
	}

	facts := &atlas.Facts{
		Description: description(dir),
		Bare:        bare,
		Remotes:     remotes,
		Branches:    branches,
	}
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	return facts, nil
}

// isBare runs rev-parse --is-bare-repository and parses the boolean.
func (p *Prober) isBare(ctx context.Context, dir string) (bool, error) {
	out, err := p.run(ctx, nil, "git", "--git-dir="+dir, "rev-parse", "--is-bare-repository")
	if err != nil {
		return false, err
	}
	bare, err := strconv.ParseBool(strings.TrimSpace(string(out)))
	if err != nil {
		return false, fmt.Errorf("%s: unexpected is-bare-repository output %q", dir, strings.TrimSpace(string(out)))
	}
	return bare, nil
}

// heads returns branch name -> leaf commit hash from show-ref.
//
// show-ref emits lines of the form "<hash> refs/heads/<name>". A ref
// outside refs/heads/ fails the inspection; show-ref --heads must not
// produce one.
func (p *Prober) heads(ctx context.Context, dir string) (map[string]string, error) {
	out, err := p.run(ctx, nil, "git", "--git-dir="+dir, "show-ref", "--heads")
	if err != nil {
		// show-ref exits nonzero when there are no heads at all, so a
		// freshly initialized repository counts as an inspection
		// failure here, same as any other git error.
		return nil, err
	}

	const prefix = "refs/heads/"
	heads := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		hash, ref := fields[0], fields[1]
		name, ok := strings.CutPrefix(ref, prefix)
		if !ok {
			p.Logger.Printf("Ref %q in %s does not start with %s", ref, dir, prefix)
			return nil, fmt.Errorf("%s: ref %q lacks expected prefix %s", dir, ref, prefix)
		}
		heads[name] = hash
	}
	return heads, nil
}

// roots returns the zero-parent commits reachable from HEAD.
func (p *Prober) roots(ctx context.Context, dir string) ([]string, error) {
	out, err := p.run(ctx, nil, "git", "--git-dir="+dir, "rev-list", "--max-parents=0", "HEAD", "--")
	if err != nil {
		return nil, err
	}

	var roots []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			roots = append(roots, line)
		}
	}
	return roots, nil
}

// remotes returns remote name -> address. `git remote -v` lists each
// remote twice (fetch and push); the map collapses them.
func (p *Prober) remotes(ctx context.Context, dir string) (map[string]string, error) {
	out, err := p.run(ctx, nil, "git", "--git-dir="+dir, "remote", "-v")
	if err != nil {
		return nil, err
	}

	remotes := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		remotes[fields[0]] = fields[1]
	}
	return remotes, nil
}

// description reads the git description file. The stock placeholder
// ("Unnamed repository; ...") and an unreadable file both count as no
// description.
func description(dir string) *string {
	data, err := os.ReadFile(filepath.Join(dir, "description"))
	if err != nil {
		return nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" || strings.HasPrefix(text, "Unnamed repository;") {
		return nil
	}
	return &text
}
