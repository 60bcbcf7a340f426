package sandbox

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/breaker"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

// Config tunes routing.
type Config struct {
	// ForceRemote sends every request to the remote executor, including
	// languages that would normally run in process.
	ForceRemote bool
}

// Dispatcher picks an executor per request. Javascript and typescript run
// in process, the rest through local toolchains; the remote service takes
// over when a local toolchain is missing or remote mode is forced. A
// language whose toolchain was found missing is remembered and routed
// remotely for the rest of the process lifetime.
type Dispatcher struct {
	cfg    Config
	inProc Executor
	local  Executor
	remote Executor // nil when remote execution is not configured
	brk    *breaker.Breaker

	mu          sync.Mutex
	unavailable map[language.Language]bool
}

// NewDispatcher wires the three executors together. remote may be nil;
// brk may be nil when remote is nil.
func NewDispatcher(cfg Config, inProc, local, remote Executor, brk *breaker.Breaker) *Dispatcher {
	if remote != nil && brk == nil {
		brk = breaker.New(breaker.DefaultConfig())
	}
	return &Dispatcher{
		cfg:         cfg,
		inProc:      inProc,
		local:       local,
		remote:      remote,
		brk:         brk,
		unavailable: make(map[language.Language]bool),
	}
}

// Execute routes one request.
func (d *Dispatcher) Execute(ctx context.Context, req spec.Request) (result.Execution, error) {
	tc, ok := language.Lookup(req.Language)
	if !ok {
		return result.Execution{}, appErr.Newf(appErr.LanguageNotSupported, "unsupported language %q", req.Language)
	}

	if d.cfg.ForceRemote {
		if d.remote == nil {
			return result.RemoteFailure("remote execution is not configured"), nil
		}
		return d.executeRemote(ctx, req)
	}

	if tc.InProcess {
		return d.inProc.Execute(ctx, req)
	}

	if d.isUnavailable(req.Language) && d.remote != nil {
		return d.executeRemote(ctx, req)
	}

	res, err := d.local.Execute(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Failure == result.FailureToolchain {
		d.markUnavailable(ctx, req.Language, res.Stderr)
		if d.remote != nil {
			return d.executeRemote(ctx, req)
		}
	}
	return res, nil
}

func (d *Dispatcher) executeRemote(ctx context.Context, req spec.Request) (result.Execution, error) {
	if !d.brk.Allow() {
		return result.RemoteFailure("execution service temporarily disabled (circuit open)"), nil
	}

	res, err := d.remote.Execute(ctx, req)
	if err != nil {
		return res, err
	}

	if res.Failure == result.FailureRemote {
		d.brk.ReportFailure()
		if d.brk.State() == breaker.Open {
			logger.Warn(ctx, "remote executor circuit opened", zap.String("reason", res.Stderr))
		}
	} else {
		d.brk.ReportSuccess()
	}
	return res, nil
}

func (d *Dispatcher) isUnavailable(lang language.Language) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unavailable[lang]
}

func (d *Dispatcher) markUnavailable(ctx context.Context, lang language.Language, diagnostic string) {
	d.mu.Lock()
	already := d.unavailable[lang]
	d.unavailable[lang] = true
	d.mu.Unlock()

	if !already {
		logger.Warn(ctx, "local toolchain unavailable",
			zap.String("language", string(lang)),
			zap.String("diagnostic", diagnostic))
	}
}
