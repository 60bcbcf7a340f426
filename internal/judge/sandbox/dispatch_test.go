package sandbox_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/breaker"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

// fakeExecutor records calls and answers from a scripted function.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []spec.Request
	run   func(req spec.Request) (result.Execution, error)
}

func (f *fakeExecutor) Execute(_ context.Context, req spec.Request) (result.Execution, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(req)
	}
	return result.Execution{}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func answering(stdout string) *fakeExecutor {
	return &fakeExecutor{run: func(spec.Request) (result.Execution, error) {
		return result.Execution{Stdout: stdout}, nil
	}}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRoutesInProcessLanguages(t *testing.T) {
	t.Parallel()

	inProc := answering("inproc")
	local := answering("local")
	remote := answering("remote")
	d := sandbox.NewDispatcher(sandbox.Config{}, inProc, local, remote, nil)

	for _, lang := range []language.Language{language.JavaScript, language.TypeScript} {
		res, err := d.Execute(context.Background(), spec.Request{Language: lang, Source: "x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Stdout != "inproc" {
			t.Fatalf("expected %q to run in process, got %q", lang, res.Stdout)
		}
	}
	if local.callCount() != 0 || remote.callCount() != 0 {
		t.Fatalf("expected only the in-process executor to be used")
	}
}

func TestRoutesLocalToolchains(t *testing.T) {
	t.Parallel()

	inProc := answering("inproc")
	local := answering("local")
	remote := answering("remote")
	d := sandbox.NewDispatcher(sandbox.Config{}, inProc, local, remote, nil)

	for _, lang := range []language.Language{language.Python, language.Java, language.CPP} {
		res, err := d.Execute(context.Background(), spec.Request{Language: lang, Source: "x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Stdout != "local" {
			t.Fatalf("expected %q to run locally, got %q", lang, res.Stdout)
		}
	}
	if inProc.callCount() != 0 || remote.callCount() != 0 {
		t.Fatalf("expected only the local executor to be used")
	}
}

func TestForceRemote(t *testing.T) {
	t.Parallel()

	inProc := answering("inproc")
	local := answering("local")
	remote := answering("remote")
	d := sandbox.NewDispatcher(sandbox.Config{ForceRemote: true}, inProc, local, remote, nil)

	for _, lang := range []language.Language{language.JavaScript, language.Python} {
		res, err := d.Execute(context.Background(), spec.Request{Language: lang, Source: "x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Stdout != "remote" {
			t.Fatalf("expected %q to run remotely, got %q", lang, res.Stdout)
		}
	}
	if inProc.callCount() != 0 || local.callCount() != 0 {
		t.Fatalf("expected only the remote executor to be used")
	}
}

func TestForceRemoteUnconfigured(t *testing.T) {
	t.Parallel()

	d := sandbox.NewDispatcher(sandbox.Config{ForceRemote: true}, answering("inproc"), answering("local"), nil, nil)
	res, err := d.Execute(context.Background(), spec.Request{Language: language.Python, Source: "x"})
	if err != nil {
		t.Fatalf("expected failure as result data, got error: %v", err)
	}
	if res.Failure != result.FailureRemote {
		t.Fatalf("expected a remote failure, got %q", res.Failure)
	}
	if !strings.Contains(res.Stderr, "not configured") {
		t.Fatalf("unexpected diagnostic: %q", res.Stderr)
	}
}

func TestMissingToolchainFallsBackToRemote(t *testing.T) {
	t.Parallel()

	local := &fakeExecutor{run: func(spec.Request) (result.Execution, error) {
		return result.ToolchainFailure("python3 not found in PATH"), nil
	}}
	remote := answering("remote")
	d := sandbox.NewDispatcher(sandbox.Config{}, answering("inproc"), local, remote, nil)

	res, err := d.Execute(context.Background(), spec.Request{Language: language.Python, Source: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "remote" {
		t.Fatalf("expected the remote result, got %+v", res)
	}

	// The language is remembered as unavailable; later requests skip the
	// local attempt entirely.
	if _, err := d.Execute(context.Background(), spec.Request{Language: language.Python, Source: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if local.callCount() != 1 {
		t.Fatalf("expected one local attempt, got %d", local.callCount())
	}
	if remote.callCount() != 2 {
		t.Fatalf("expected two remote runs, got %d", remote.callCount())
	}
}

func TestMissingToolchainWithoutRemote(t *testing.T) {
	t.Parallel()

	local := &fakeExecutor{run: func(spec.Request) (result.Execution, error) {
		return result.ToolchainFailure("javac not found in PATH"), nil
	}}
	d := sandbox.NewDispatcher(sandbox.Config{}, answering("inproc"), local, nil, nil)

	res, err := d.Execute(context.Background(), spec.Request{Language: language.Java, Source: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure != result.FailureToolchain {
		t.Fatalf("expected the toolchain failure to surface, got %q", res.Failure)
	}
}

func TestBreakerShieldsRemote(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	remote := &fakeExecutor{run: func(spec.Request) (result.Execution, error) {
		if healthy.Load() {
			return result.Execution{Stdout: "remote"}, nil
		}
		return result.RemoteFailure("execution service unreachable"), nil
	}}

	clk := newFakeClock()
	brk := breaker.New(breaker.Config{FailureThreshold: 2, Cooldown: 10 * time.Second, Now: clk.Now})
	d := sandbox.NewDispatcher(sandbox.Config{ForceRemote: true}, answering("inproc"), answering("local"), remote, brk)

	req := spec.Request{Language: language.Python, Source: "x"}

	for i := 0; i < 2; i++ {
		if _, err := d.Execute(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if brk.State() != breaker.Open {
		t.Fatalf("expected the breaker to open after consecutive failures, got %v", brk.State())
	}

	res, err := d.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.callCount() != 2 {
		t.Fatalf("an open breaker must not let requests through, got %d calls", remote.callCount())
	}
	if res.Failure != result.FailureRemote || !strings.Contains(res.Stderr, "circuit open") {
		t.Fatalf("expected a circuit open result, got %+v", res)
	}

	// After the cooldown one probe goes out; a healthy answer closes the
	// breaker and traffic resumes.
	clk.Advance(11 * time.Second)
	healthy.Store(true)

	probe, err := d.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probe.Stdout != "remote" {
		t.Fatalf("expected the probe to reach the remote executor, got %+v", probe)
	}
	if brk.State() != breaker.Closed {
		t.Fatalf("expected the breaker to close after a successful probe, got %v", brk.State())
	}

	if _, err := d.Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.callCount() != 4 {
		t.Fatalf("expected traffic to resume, got %d calls", remote.callCount())
	}
}

func TestRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()

	d := sandbox.NewDispatcher(sandbox.Config{}, answering("inproc"), answering("local"), answering("remote"), nil)
	_, err := d.Execute(context.Background(), spec.Request{Language: language.Language("ruby"), Source: "x"})
	if err == nil {
		t.Fatalf("expected an error for an unknown language")
	}
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported code, got %d", appErr.GetCode(err))
	}
}
