package jsvm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/jsvm"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

func evalJS(t *testing.T, source, stdin string) result.Execution {
	t.Helper()
	return evalLang(t, language.JavaScript, source, stdin)
}

func evalLang(t *testing.T, lang language.Language, source, stdin string) result.Execution {
	t.Helper()
	ev := jsvm.NewEvaluator(jsvm.Config{})
	res, err := ev.Execute(context.Background(), spec.Request{
		Language: lang,
		Source:   source,
		Stdin:    stdin,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func TestConsoleStreams(t *testing.T) {
	t.Parallel()

	source := `
console.log("to stdout");
console.info("info too");
console.warn("warn too");
console.error("to stderr");
`
	res := evalJS(t, source, "")
	if res.ExitCode != 0 {
		t.Fatalf("expected clean exit, got %d with stderr %q", res.ExitCode, res.Stderr)
	}
	if res.Stdout != "to stdout\ninfo too\nwarn too\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if res.Stderr != "to stderr\n" {
		t.Fatalf("unexpected stderr: %q", res.Stderr)
	}
}

func TestConsoleFormatting(t *testing.T) {
	t.Parallel()

	source := `console.log("x", 1, true, [1,2], {k:"v"}, null, undefined);`
	res := evalJS(t, source, "")
	expected := `x 1 true [1,2] {"k":"v"} null undefined` + "\n"
	if res.Stdout != expected {
		t.Fatalf("expected %q, got %q", expected, res.Stdout)
	}
}

func TestReadLine(t *testing.T) {
	t.Parallel()

	source := `
const a = readLine();
const b = gets();
const c = prompt();
const d = readLine(); // input is exhausted here
console.log(a, b, c, JSON.stringify(d));
`
	res := evalJS(t, source, "one\ntwo\nthree\n")
	if res.Stdout != "one two three \"\"\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestReadFileSyncReturnsStdin(t *testing.T) {
	t.Parallel()

	source := `
const data = require('fs').readFileSync('/dev/stdin', 'utf8');
console.log(data.trim().split("\n").length);
`
	res := evalJS(t, source, "1\n2\n3\n")
	if res.Stdout != "3\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestRequireUnknownModule(t *testing.T) {
	t.Parallel()

	res := evalJS(t, `require('http');`, "")
	if res.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "Cannot find module 'http'") {
		t.Fatalf("expected module error in stderr, got %q", res.Stderr)
	}
}

func TestUncaughtException(t *testing.T) {
	t.Parallel()

	res := evalJS(t, `console.log("before"); throw new Error("boom");`, "")
	if res.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", res.ExitCode)
	}
	if res.Stdout != "before\n" {
		t.Fatalf("expected output before the throw, got %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "Error: boom" {
		t.Fatalf("expected single line error, got %q", res.Stderr)
	}
}

func TestSyntaxError(t *testing.T) {
	t.Parallel()

	res := evalJS(t, `function {`, "")
	if res.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "SyntaxError") {
		t.Fatalf("expected a syntax error, got %q", res.Stderr)
	}
	if strings.Count(strings.TrimSpace(res.Stderr), "\n") != 0 {
		t.Fatalf("expected a single diagnostic line, got %q", res.Stderr)
	}
}

func TestTimeLimit(t *testing.T) {
	t.Parallel()

	ev := jsvm.NewEvaluator(jsvm.Config{})
	res, err := ev.Execute(context.Background(), spec.Request{
		Language:    language.JavaScript,
		Source:      `console.log("tick"); while (true) {}`,
		TimeLimitMs: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected a timeout")
	}
	if res.Stdout != "tick\n" {
		t.Fatalf("expected partial output to survive, got %q", res.Stdout)
	}
	if res.Stderr != "Time limit exceeded" {
		t.Fatalf("expected default timeout message, got %q", res.Stderr)
	}
	if res.ExitCode == 0 {
		t.Fatalf("a timed out run must not report exit 0")
	}
}

func TestTimeLimitOnTimerLoop(t *testing.T) {
	t.Parallel()

	ev := jsvm.NewEvaluator(jsvm.Config{})
	res, err := ev.Execute(context.Background(), spec.Request{
		Language:    language.JavaScript,
		Source:      `setInterval(() => {}, 1);`,
		TimeLimitMs: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("a self-rescheduling interval must hit the time limit")
	}
}

func TestTimersRunInDueOrder(t *testing.T) {
	t.Parallel()

	source := `
setTimeout(() => console.log("second"), 20);
setTimeout(() => console.log("third"), 30);
setTimeout(() => console.log("first"), 10);
console.log("main");
`
	res := evalJS(t, source, "")
	if res.Stdout != "main\nfirst\nsecond\nthird\n" {
		t.Fatalf("unexpected ordering: %q", res.Stdout)
	}
}

func TestTimersAreVirtual(t *testing.T) {
	t.Parallel()

	ev := jsvm.NewEvaluator(jsvm.Config{})
	res, err := ev.Execute(context.Background(), spec.Request{
		Language:    language.JavaScript,
		Source:      `setTimeout(() => console.log("done"), 2500);`,
		TimeLimitMs: 3000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TimedOut {
		t.Fatalf("virtual delays must not burn the budget")
	}
	if res.Stdout != "done\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if res.RuntimeMs >= 2000 {
		t.Fatalf("timer delay was waited out for real: %dms", res.RuntimeMs)
	}
}

func TestClearTimeout(t *testing.T) {
	t.Parallel()

	source := `
const id = setTimeout(() => console.log("skipped"), 10);
clearTimeout(id);
setTimeout(() => console.log("kept"), 20);
`
	res := evalJS(t, source, "")
	if res.Stdout != "kept\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestClearIntervalStopsRepeats(t *testing.T) {
	t.Parallel()

	source := `
let n = 0;
const id = setInterval(() => {
  n++;
  console.log(n);
  if (n === 3) clearInterval(id);
}, 10);
`
	res := evalJS(t, source, "")
	if res.Stdout != "1\n2\n3\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestTypeScriptTranspile(t *testing.T) {
	t.Parallel()

	source := `
interface Pair { a: number; b: number }
const p: Pair = { a: 2, b: 3 };
const sum = (x: number, y: number): number => x + y;
console.log(sum(p.a, p.b));
`
	res := evalLang(t, language.TypeScript, source, "")
	if res.ExitCode != 0 {
		t.Fatalf("expected clean exit, got %d with stderr %q", res.ExitCode, res.Stderr)
	}
	if res.Stdout != "5\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestTypeScriptSyntaxError(t *testing.T) {
	t.Parallel()

	res := evalLang(t, language.TypeScript, `const x: = 5;`, "")
	if res.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", res.ExitCode)
	}
	if !strings.HasPrefix(res.Stderr, "SyntaxError:") {
		t.Fatalf("expected a syntax error, got %q", res.Stderr)
	}
}

func TestOutputCapped(t *testing.T) {
	t.Parallel()

	ev := jsvm.NewEvaluator(jsvm.Config{OutputMaxBytes: 16})
	res, err := ev.Execute(context.Background(), spec.Request{
		Language: language.JavaScript,
		Source:   `for (let i = 0; i < 1000; i++) console.log("aaaaaaaaaa");`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Stdout) != 16 {
		t.Fatalf("expected stdout capped at 16 bytes, got %d", len(res.Stdout))
	}
}

func TestNodeGlobalsAbsent(t *testing.T) {
	t.Parallel()

	res := evalJS(t, `console.log(typeof process, typeof fetch, typeof XMLHttpRequest);`, "")
	if res.Stdout != "undefined undefined undefined\n" {
		t.Fatalf("host globals leaked into the runtime: %q", res.Stdout)
	}
}

func TestRejectsOtherLanguages(t *testing.T) {
	t.Parallel()

	ev := jsvm.NewEvaluator(jsvm.Config{})
	_, err := ev.Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   `print("hi")`,
	})
	if err == nil {
		t.Fatalf("expected an error for a non javascript language")
	}
	if !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams code, got %d", appErr.GetCode(err))
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ev := jsvm.NewEvaluator(jsvm.Config{})
	_, err := ev.Execute(ctx, spec.Request{
		Language:    language.JavaScript,
		Source:      `while (true) {}`,
		TimeLimitMs: 5000,
	})
	if err == nil {
		t.Fatalf("expected an error when the context is cancelled")
	}
	if appErr.GetCode(err) != appErr.Canceled {
		t.Fatalf("expected Canceled code, got %d", appErr.GetCode(err))
	}
}
