// Package subprocess executes submissions through local language toolchains.
// Every request stages into its own uniquely named directory, compiles when
// the language needs it, runs against the provided stdin and tears the
// staging directory down on every exit path.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

const (
	defaultOutputMaxBytes      int64 = 64 * 1024
	defaultCompileTimeLimitMs  int64 = 10000
	stagingDirPrefix                 = "judge-"
	defaultTimeoutStderr             = "Time limit exceeded"
)

// Config tunes the driver.
type Config struct {
	WorkRoot           string // parent of per-request staging dirs, "" = os.TempDir()
	OutputMaxBytes     int64  // stdout/stderr capture cap per stream
	CompileTimeLimitMs int64  // budget for the compile stage
}

// Driver runs python/java/cpp submissions as managed child processes.
type Driver struct {
	cfg Config
}

// NewDriver creates a driver, applying defaults for zero config fields.
func NewDriver(cfg Config) *Driver {
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	if cfg.CompileTimeLimitMs <= 0 {
		cfg.CompileTimeLimitMs = defaultCompileTimeLimitMs
	}
	return &Driver{cfg: cfg}
}

// Execute compiles (when needed) and runs one request. Toolchain and
// compile failures come back as result data, not errors; errors are
// reserved for unusable requests and cancelled contexts.
func (d *Driver) Execute(ctx context.Context, req spec.Request) (result.Execution, error) {
	tc, ok := language.Lookup(req.Language)
	if !ok {
		return result.Execution{}, appErr.Newf(appErr.LanguageNotSupported, "unsupported language %q", req.Language)
	}
	if tc.InProcess {
		return result.Execution{}, appErr.Newf(appErr.InvalidParams, "%s is evaluated in process, not by the subprocess driver", req.Language)
	}

	dir, err := d.stage(tc, req.Source)
	if err != nil {
		return result.Execution{}, err
	}
	defer d.removeStaging(ctx, dir)

	if tc.Compile != nil {
		compileRes, err := d.runStep(ctx, dir, tc, *tc.Compile, "", d.compileTimeout())
		if err != nil {
			return result.Execution{}, err
		}
		if compileRes.Failure == result.FailureToolchain {
			return compileRes, nil
		}
		if compileRes.TimedOut || compileRes.ExitCode != 0 {
			return result.CompileFailure(compileDiagnostics(dir, compileRes), compileRes.RuntimeMs), nil
		}
	}

	runRes, err := d.runStep(ctx, dir, tc, tc.Run, req.Stdin, req.Timeout())
	if err != nil {
		return runRes, err
	}
	runRes.Stderr = sanitizePaths(dir, runRes.Stderr)
	return runRes, nil
}

// stage creates the per-request directory and writes the source file into it.
func (d *Driver) stage(tc language.Toolchain, source string) (string, error) {
	root := d.cfg.WorkRoot
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxSetupFailed, "create work root failed")
	}
	dir := filepath.Join(root, stagingDirPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxSetupFailed, "create staging dir failed")
	}
	if err := os.WriteFile(filepath.Join(dir, tc.SourceFile), []byte(source), 0644); err != nil {
		_ = os.RemoveAll(dir)
		return "", appErr.Wrapf(err, appErr.SandboxSetupFailed, "write source failed")
	}
	return dir, nil
}

// removeStaging deletes the staging directory. Failures are logged and
// swallowed; they must never change the outcome of a finished run.
func (d *Driver) removeStaging(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn(ctx, "staging dir cleanup failed", zap.String("dir", dir), zap.Error(err))
	}
}

func (d *Driver) runStep(ctx context.Context, dir string, tc language.Toolchain, step language.Step, stdin string, timeout time.Duration) (result.Execution, error) {
	argv, err := commandFor(step, dir, tc)
	if err != nil {
		if appErr.Is(err, appErr.ToolchainMissing) {
			return result.ToolchainFailure(err.Error()), nil
		}
		return result.Execution{}, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = childEnv(dir)

	stdout := newCappedBuffer(d.cfg.OutputMaxBytes)
	stderr := newCappedBuffer(d.cfg.OutputMaxBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || os.IsNotExist(err) {
			return result.ToolchainFailure(err.Error()), nil
		}
		return result.Execution{}, appErr.Wrapf(err, appErr.SandboxSetupFailed, "start %s failed", filepath.Base(argv[0]))
	}

	stopSampler := startMemSampler(cmd.Process.Pid)

	var timedOut atomic.Bool
	killCtx, cancelKill := context.WithCancel(ctx)
	defer cancelKill()

	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if timeout > 0 {
			wallTimer = time.After(timeout)
		}
		select {
		case <-killCtx.Done():
			killProcessGroup(cmd)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	peakKB := stopSampler()
	if ru := rusageMaxKB(cmd.ProcessState); ru > peakKB {
		peakKB = ru
	}

	res := result.Execution{
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		ExitCode:     exitCodeFromErr(waitErr, cmd.ProcessState),
		TimedOut:     timedOut.Load(),
		RuntimeMs:    time.Since(start).Milliseconds(),
		PeakMemoryKB: peakKB,
	}

	if ctx.Err() != nil {
		return res, appErr.Wrap(ctx.Err(), appErr.Canceled)
	}

	if res.TimedOut {
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
		if strings.TrimSpace(res.Stderr) == "" {
			res.Stderr = defaultTimeoutStderr
		}
	}

	return res, nil
}

// commandFor expands the step template with {src}, {bin} and {dir} and
// resolves the tool binary. The returned argv is ready for exec.
func commandFor(step language.Step, dir string, tc language.Toolchain) ([]string, error) {
	expanded := strings.ReplaceAll(step.Args, "{src}", filepath.Join(dir, tc.SourceFile))
	if tc.BinFile != "" {
		expanded = strings.ReplaceAll(expanded, "{bin}", filepath.Join(dir, tc.BinFile))
	}
	expanded = strings.ReplaceAll(expanded, "{dir}", dir)

	args, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}

	if step.Tool.Bin == "" {
		if len(args) == 0 {
			return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
		}
		return args, nil
	}

	path, err := step.Tool.Resolve()
	if err != nil {
		return nil, err
	}
	return append([]string{path}, args...), nil
}

func (d *Driver) compileTimeout() time.Duration {
	return time.Duration(d.cfg.CompileTimeLimitMs) * time.Millisecond
}

// compileDiagnostics picks the most useful compiler output for the user.
func compileDiagnostics(dir string, res result.Execution) string {
	diag := res.Stderr
	if strings.TrimSpace(diag) == "" {
		diag = res.Stdout
	}
	if res.TimedOut && strings.TrimSpace(diag) == "" {
		diag = "compilation timed out"
	}
	return sanitizePaths(dir, diag)
}

// sanitizePaths strips the staging directory prefix from user-visible text.
func sanitizePaths(dir, text string) string {
	if dir == "" || text == "" {
		return text
	}
	return strings.ReplaceAll(text, dir+string(os.PathSeparator), "")
}

// childEnv builds a minimal environment for the submission process.
func childEnv(dir string) []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// cappedBuffer keeps at most limit bytes and drops the rest, so runaway
// program output cannot exhaust judge memory.
type cappedBuffer struct {
	mu    sync.Mutex
	limit int64
	buf   bytes.Buffer
}

func newCappedBuffer(limit int64) *cappedBuffer {
	if limit <= 0 {
		limit = defaultOutputMaxBytes
	}
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remain := b.limit - int64(b.buf.Len())
	if remain <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remain {
		b.buf.Write(p[:remain])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
