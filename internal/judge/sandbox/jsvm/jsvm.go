// Package jsvm evaluates javascript and typescript submissions inside an
// embedded VM. The runtime sees only an allow-listed host surface: a
// synthetic console, line-based stdin readers, timer primitives and a
// require stub. Everything else a Node program might reach for is absent,
// so filesystem, network and process access fail inside the VM.
package jsvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

const (
	defaultOutputMaxBytes int64 = 64 * 1024
	maxPendingTimers            = 10000
	defaultTimeoutStderr        = "Time limit exceeded"

	interruptTimeout  = "time limit exceeded"
	interruptCanceled = "canceled"
)

// Config tunes the evaluator.
type Config struct {
	OutputMaxBytes int64 // stdout/stderr capture cap per stream
}

// Evaluator runs javascript and typescript submissions in process.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator, applying defaults for zero config fields.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	return &Evaluator{cfg: cfg}
}

// Execute evaluates one request. Uncaught exceptions and rejected syntax
// land in stderr with exit status 1; only cancelled contexts and unusable
// requests return errors.
func (e *Evaluator) Execute(ctx context.Context, req spec.Request) (result.Execution, error) {
	if req.Language != language.JavaScript && req.Language != language.TypeScript {
		return result.Execution{}, appErr.Newf(appErr.InvalidParams, "%s is not evaluated in process", req.Language)
	}

	start := time.Now()
	source := req.Source
	if req.Language == language.TypeScript {
		code, msg := transpile(source)
		if msg != "" {
			return result.Execution{
				Stderr:    msg,
				ExitCode:  1,
				RuntimeMs: time.Since(start).Milliseconds(),
			}, nil
		}
		source = code
	}

	prog, err := goja.Compile("main.js", source, false)
	if err != nil {
		return result.Execution{
			Stderr:    singleLine(err.Error()),
			ExitCode:  1,
			RuntimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	rt := goja.New()
	host := newHostEnv(rt, req.Stdin, e.cfg.OutputMaxBytes)
	if err := host.install(); err != nil {
		return result.Execution{}, appErr.Wrap(err, appErr.JudgeSystemError)
	}

	budget := time.AfterFunc(req.Timeout(), func() { rt.Interrupt(interruptTimeout) })
	defer budget.Stop()

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(interruptCanceled)
		case <-watchdogDone:
		}
	}()

	_, runErr := rt.RunProgram(prog)
	if runErr == nil {
		runErr = host.drainTimers()
	}

	res := result.Execution{
		Stdout:    host.stdout.String(),
		Stderr:    host.stderr.String(),
		RuntimeMs: time.Since(start).Milliseconds(),
	}

	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		return res, appErr.Wrap(ctx.Err(), appErr.Canceled)
	case isInterrupt(runErr, interruptTimeout):
		res.TimedOut = true
		res.ExitCode = -1
		if strings.TrimSpace(res.Stderr) == "" {
			res.Stderr = defaultTimeoutStderr
		}
	default:
		res.ExitCode = 1
		appendLine(&res.Stderr, exceptionLine(runErr))
	}

	return res, nil
}

// transpile lowers typescript to javascript without type checking. The
// second return value carries the first syntax error, empty on success.
func transpile(source string) (string, string) {
	res := api.Transform(source, api.TransformOptions{
		Loader: api.LoaderTS,
		Target: api.ES2017,
	})
	if len(res.Errors) > 0 {
		msg := res.Errors[0].Text
		if loc := res.Errors[0].Location; loc != nil {
			msg = fmt.Sprintf("%s (line %d)", msg, loc.Line)
		}
		return "", "SyntaxError: " + singleLine(msg)
	}
	return string(res.Code), ""
}

type timerJob struct {
	id     int64
	seq    int64
	fn     goja.Callable
	args   []goja.Value
	due    int64 // virtual milliseconds; ordering key, not a real wait
	delay  int64
	repeat bool
}

// hostEnv is the allow-listed surface a submission can touch.
type hostEnv struct {
	rt       *goja.Runtime
	stdinRaw string
	lines    []string
	lineIdx  int
	stdout   *boundedBuf
	stderr   *boundedBuf
	timers   map[int64]*timerJob
	lastID   int64
	lastSeq  int64
}

func newHostEnv(rt *goja.Runtime, stdin string, outputMax int64) *hostEnv {
	return &hostEnv{
		rt:       rt,
		stdinRaw: stdin,
		lines:    splitLines(stdin),
		stdout:   &boundedBuf{limit: outputMax},
		stderr:   &boundedBuf{limit: outputMax},
		timers:   make(map[int64]*timerJob),
	}
}

func (h *hostEnv) install() error {
	console := h.rt.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		h.writeConsole(h.stdout, call.Arguments)
		return goja.Undefined()
	}
	errFn := func(call goja.FunctionCall) goja.Value {
		h.writeConsole(h.stderr, call.Arguments)
		return goja.Undefined()
	}
	if err := setEach(console.Set, map[string]interface{}{
		"log":   logFn,
		"info":  logFn,
		"warn":  logFn,
		"error": errFn,
	}); err != nil {
		return err
	}

	readLine := func(goja.FunctionCall) goja.Value {
		return h.rt.ToValue(h.nextLine())
	}

	return setEach(h.rt.Set, map[string]interface{}{
		"console":       console,
		"readLine":      readLine,
		"gets":          readLine,
		"prompt":        readLine,
		"setTimeout":    func(call goja.FunctionCall) goja.Value { return h.schedule(call, false) },
		"setInterval":   func(call goja.FunctionCall) goja.Value { return h.schedule(call, true) },
		"clearTimeout":  h.clearTimer,
		"clearInterval": h.clearTimer,
		"require":       h.require,
	})
}

func setEach(set func(string, interface{}) error, entries map[string]interface{}) error {
	for name, v := range entries {
		if err := set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (h *hostEnv) nextLine() string {
	if h.lineIdx >= len(h.lines) {
		return ""
	}
	line := h.lines[h.lineIdx]
	h.lineIdx++
	return line
}

func (h *hostEnv) writeConsole(buf *boundedBuf, args []goja.Value) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, formatValue(a))
	}
	buf.WriteString(strings.Join(parts, " ") + "\n")
}

func (h *hostEnv) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.rt.NewTypeError("callback must be a function"))
	}
	if len(h.timers) >= maxPendingTimers {
		panic(h.rt.NewTypeError("too many pending timers"))
	}
	delay := call.Argument(1).ToInteger()
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	h.lastID++
	h.lastSeq++
	h.timers[h.lastID] = &timerJob{
		id:     h.lastID,
		seq:    h.lastSeq,
		fn:     fn,
		args:   args,
		due:    delay,
		delay:  delay,
		repeat: repeat,
	}
	return h.rt.ToValue(h.lastID)
}

func (h *hostEnv) clearTimer(call goja.FunctionCall) goja.Value {
	delete(h.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

func (h *hostEnv) require(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if name != "fs" {
		panic(h.rt.NewTypeError("Cannot find module '%s'", name))
	}
	fs := h.rt.NewObject()
	// readFileSync hands back the request's stdin regardless of path, the
	// shape competitive solutions written for Node expect.
	if err := fs.Set("readFileSync", func(goja.FunctionCall) goja.Value {
		return h.rt.ToValue(h.stdinRaw)
	}); err != nil {
		panic(h.rt.NewTypeError("install fs failed"))
	}
	return fs
}

// drainTimers runs deferred callbacks in due order after the main script
// returns. Delays order the queue but are not waited out; the interrupt
// budget still bounds total work, so a self-rescheduling interval times
// out like any other loop.
func (h *hostEnv) drainTimers() error {
	for {
		job := h.nextDue()
		if job == nil {
			return nil
		}
		if job.repeat {
			job.due += max(job.delay, 1)
			h.lastSeq++
			job.seq = h.lastSeq
		} else {
			delete(h.timers, job.id)
		}
		if _, err := job.fn(goja.Undefined(), job.args...); err != nil {
			return err
		}
	}
}

func (h *hostEnv) nextDue() *timerJob {
	var best *timerJob
	for _, j := range h.timers {
		if best == nil || j.due < best.due || (j.due == best.due && j.seq < best.seq) {
			best = j
		}
	}
	return best
}

// formatValue renders one console argument. Objects and arrays are
// JSON-encoded, everything else uses its string conversion.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if t := v.ExportType(); t != nil {
		switch t.Kind() {
		case reflect.Map, reflect.Slice, reflect.Struct:
			if data, err := json.Marshal(v.Export()); err == nil {
				return string(data)
			}
		}
	}
	return v.String()
}

func isInterrupt(err error, cause string) bool {
	var ie *goja.InterruptedError
	if !errors.As(err, &ie) {
		return false
	}
	s, ok := ie.Value().(string)
	return ok && s == cause
}

func exceptionLine(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return singleLine(ex.Value().String())
	}
	return singleLine(err.Error())
}

func singleLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func appendLine(dst *string, line string) {
	if *dst != "" && !strings.HasSuffix(*dst, "\n") {
		*dst += "\n"
	}
	*dst += line + "\n"
}

func splitLines(stdin string) []string {
	if stdin == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(stdin, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// boundedBuf keeps at most limit bytes; the VM runs single threaded so no
// locking is needed.
type boundedBuf struct {
	limit int64
	b     strings.Builder
}

func (w *boundedBuf) WriteString(s string) {
	remain := w.limit - int64(w.b.Len())
	if remain <= 0 {
		return
	}
	if int64(len(s)) > remain {
		s = s[:remain]
	}
	w.b.WriteString(s)
}

func (w *boundedBuf) String() string { return w.b.String() }
