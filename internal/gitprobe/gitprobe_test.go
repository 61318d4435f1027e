package gitprobe

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repoatlas/repoatlas/internal/atlas"
)

// fakeGit returns a Runner that serves canned stdout keyed by the git
// subcommand (the first argument after the --git-dir flag, or the
// first argument outright). Missing keys produce an error, modelling a
// failed git invocation.
type fakeGit struct {
	stdout map[string]string
	calls  [][]string
	env    [][]string
}

func (f *fakeGit) runner() Runner {
	return func(_ context.Context, extraEnv []string, name string, args ...string) ([]byte, error) {
		f.calls = append(f.calls, append([]string{name}, args...))
		f.env = append(f.env, extraEnv)

		sub := args[0]
		if strings.HasPrefix(sub, "--git-dir=") && len(args) > 1 {
			sub = args[1]
		}
		out, ok := f.stdout[sub]
		if !ok {
			return nil, fmt.Errorf("git %s failed: exit status 128", sub)
		}
		return []byte(out), nil
	}
}

func newTestProber(f *fakeGit) *Prober {
	p := NewWithRunner(f.runner())
	p.Logger = log.New(io.Discard, "", 0)
	return p
}

func healthyRepoOutput() map[string]string {
	return map[string]string{
		"rev-parse": "false\n",
		"show-ref": "1111111111111111111111111111111111111111 refs/heads/main\n" +
			"2222222222222222222222222222222222222222 refs/heads/dev\n",
		"rev-list": "0000000000000000000000000000000000000000\n",
		"remote": "origin\thttps://example.com/r.git (fetch)\n" +
			"origin\thttps://example.com/r.git (push)\n" +
			"mirror\tgit@example.org:r.git (fetch)\n" +
			"mirror\tgit@example.org:r.git (push)\n",
	}
}

func TestInspect_FsHappyPath(t *testing.T) {
	f := &fakeGit{stdout: healthyRepoOutput()}
	p := newTestProber(f)

	facts, err := p.Inspect(context.Background(), atlas.FsLocation("/repos/a/.git"))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if len(facts.Branches) != 2 {
		t.Errorf("branches = %d, want 2", len(facts.Branches))
	}
	main, ok := facts.Branches["main"]
	if !ok {
		t.Fatal("branch main missing")
	}
	if main.Leaf != "1111111111111111111111111111111111111111" {
		t.Errorf("main leaf = %s", main.Leaf)
	}
	if len(main.Roots) != 1 || main.Roots[0] != "0000000000000000000000000000000000000000" {
		t.Errorf("main roots = %v", main.Roots)
	}

	if len(facts.Remotes) != 2 {
		t.Errorf("remotes = %v, want origin and mirror", facts.Remotes)
	}
	if facts.Remotes["origin"] != "https://example.com/r.git" {
		t.Errorf("origin = %q", facts.Remotes["origin"])
	}
	if facts.Bare {
		t.Error("bare = true for non-bare output")
	}
}

func TestInspect_LeafWithoutRootsFails(t *testing.T) {
	out := healthyRepoOutput()
	out["rev-list"] = "\n" // heads exist, but no root commits
	f := &fakeGit{stdout: out}
	p := newTestProber(f)

	_, err := p.Inspect(context.Background(), atlas.FsLocation("/repos/a/.git"))
	if err == nil {
		t.Fatal("expected failure for branches without roots")
	}
	if !strings.Contains(err.Error(), "no root commits") {
		t.Errorf("error = %v", err)
	}
}

func TestInspect_MalformedRefPrefixFails(t *testing.T) {
	out := healthyRepoOutput()
	out["show-ref"] = "1111111111111111111111111111111111111111 refs/tags/v1\n"
	f := &fakeGit{stdout: out}
	p := newTestProber(f)

	_, err := p.Inspect(context.Background(), atlas.FsLocation("/repos/a/.git"))
	if err == nil {
		t.Fatal("expected failure for ref outside refs/heads/")
	}
}

func TestInspect_GitFailureIsInspectionFailure(t *testing.T) {
	f := &fakeGit{stdout: map[string]string{}} // every git call fails
	p := newTestProber(f)

	_, err := p.Inspect(context.Background(), atlas.FsLocation("/repos/broken/.git"))
	if err == nil {
		t.Fatal("expected error when git commands fail")
	}
}

func TestInspect_EmptyRepoHasNoBranches(t *testing.T) {
	out := healthyRepoOutput()
	delete(out, "show-ref") // show-ref exits nonzero with no heads
	f := &fakeGit{stdout: out}
	p := newTestProber(f)

	_, err := p.Inspect(context.Background(), atlas.FsLocation("/repos/empty/.git"))
	if err == nil {
		t.Fatal("expected inspection failure for repository without heads")
	}
}

func TestInspect_NetClonesWithPromptsDisabled(t *testing.T) {
	f := &fakeGit{stdout: healthyRepoOutput()}
	f.stdout["clone"] = ""
	p := newTestProber(f)

	_, err := p.Inspect(context.Background(), atlas.NetLocation("https://example.com/r.git"))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if len(f.calls) == 0 || f.calls[0][1] != "clone" {
		t.Fatalf("first call = %v, want git clone", f.calls)
	}
	cloneArgs := strings.Join(f.calls[0], " ")
	if !strings.Contains(cloneArgs, "--bare") {
		t.Errorf("clone not bare: %v", f.calls[0])
	}

	env := strings.Join(f.env[0], " ")
	if !strings.Contains(env, "GIT_TERMINAL_PROMPT=0") {
		t.Errorf("clone env lacks GIT_TERMINAL_PROMPT=0: %v", f.env[0])
	}
	if !strings.Contains(env, "GIT_ASKPASS=true") {
		t.Errorf("clone env lacks GIT_ASKPASS=true: %v", f.env[0])
	}
}

func TestInspect_NetCloneFailureSurfaces(t *testing.T) {
	f := &fakeGit{stdout: map[string]string{}} // clone fails
	p := newTestProber(f)

	_, err := p.Inspect(context.Background(), atlas.NetLocation("https://example.com/missing.git"))
	if err == nil {
		t.Fatal("expected error for failed clone")
	}
	if !strings.Contains(err.Error(), "failed to clone") {
		t.Errorf("error = %v", err)
	}
}

func TestProbe(t *testing.T) {
	f := &fakeGit{stdout: map[string]string{"rev-parse": ".git\n"}}
	p := newTestProber(f)

	if !p.Probe(context.Background(), "/repos/a/.git") {
		t.Error("Probe = false for healthy repo")
	}

	broken := newTestProber(&fakeGit{stdout: map[string]string{}})
	if broken.Probe(context.Background(), "/repos/not-a-repo") {
		t.Error("Probe = true when rev-parse fails")
	}
}

func TestDescription_FiltersPlaceholder(t *testing.T) {
	dir := t.TempDir()

	write := func(text string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, "description"), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("Unnamed repository; edit this file 'description' to name the repository.\n")
	if got := description(dir); got != nil {
		t.Errorf("placeholder description = %q, want nil", *got)
	}

	write("The og repository atlas.\n")
	got := description(dir)
	if got == nil || *got != "The og repository atlas." {
		t.Errorf("description = %v, want text", got)
	}

	// Missing file counts as no description, not a failure.
	if got := description(t.TempDir()); got != nil {
		t.Errorf("missing file description = %q, want nil", *got)
	}
}
