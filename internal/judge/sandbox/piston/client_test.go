package piston_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/piston"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

// capturedRequest mirrors the wire payload for assertions.
type capturedRequest struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Files    []struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	} `json:"files"`
	Stdin      string `json:"stdin"`
	RunTimeout int64  `json:"run_timeout"`
}

// pinnedClient avoids runtime discovery by pinning every version.
func pinnedClient(baseURL string) *piston.Client {
	return piston.NewClient(piston.Config{
		BaseURL: baseURL,
		Versions: map[string]string{
			"python": "3.10.0",
			"java":   "15.0.2",
			"cpp":    "10.2.0",
		},
	})
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		_, _ = w.Write([]byte(`{"language":"python","version":"3.10.0","run":{"stdout":"4\n","stderr":"","code":0}}`))
	}))
	defer srv.Close()

	client := pinnedClient(srv.URL)
	res, err := client.Execute(context.Background(), spec.Request{
		Language:    language.Python,
		Source:      "print(2+2)",
		Stdin:       "unused\n",
		TimeLimitMs: 1500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Stdout != "4\n" || res.ExitCode != 0 || res.TimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
	if captured.Language != "python" || captured.Version != "3.10.0" {
		t.Fatalf("unexpected runtime in payload: %s %s", captured.Language, captured.Version)
	}
	if len(captured.Files) != 1 || captured.Files[0].Name != "main.py" || captured.Files[0].Content != "print(2+2)" {
		t.Fatalf("unexpected files payload: %+v", captured.Files)
	}
	if captured.Stdin != "unused\n" {
		t.Fatalf("unexpected stdin payload: %q", captured.Stdin)
	}
	if captured.RunTimeout != 1500 {
		t.Fatalf("expected run_timeout 1500, got %d", captured.RunTimeout)
	}
}

func TestExecuteKilledRunMapsToTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"run":{"stdout":"partial","stderr":"","code":null,"signal":"SIGKILL"}}`))
	}))
	defer srv.Close()

	res, err := pinnedClient(srv.URL).Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   "while True: pass",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected SIGKILL to map onto a timeout")
	}
	if res.Stdout != "partial" {
		t.Fatalf("expected partial output preserved, got %q", res.Stdout)
	}
	if res.Stderr != "Time limit exceeded" {
		t.Fatalf("expected default timeout message, got %q", res.Stderr)
	}
	if res.ExitCode != -1 {
		t.Fatalf("expected exit -1 for a killed run, got %d", res.ExitCode)
	}
}

func TestExecuteCompileFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"compile":{"stdout":"","stderr":"Solution.java:1: error: ';' expected","code":1},"run":{"stdout":"","stderr":"","code":null}}`))
	}))
	defer srv.Close()

	res, err := pinnedClient(srv.URL).Execute(context.Background(), spec.Request{
		Language: language.Java,
		Source:   "class Solution { broken }",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failure != result.FailureCompile {
		t.Fatalf("expected a compile failure, got %q", res.Failure)
	}
	if !strings.Contains(res.Stderr, "';' expected") {
		t.Fatalf("expected compiler diagnostics, got %q", res.Stderr)
	}
}

func TestExecuteServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res, err := pinnedClient(srv.URL).Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   "print(1)",
	})
	if err != nil {
		t.Fatalf("expected failure as result data, got error: %v", err)
	}
	if res.Failure != result.FailureRemote {
		t.Fatalf("expected a remote failure, got %q", res.Failure)
	}
	if !strings.Contains(res.Stderr, "status 503") || !strings.Contains(res.Stderr, "overloaded") {
		t.Fatalf("expected status and body in diagnostic, got %q", res.Stderr)
	}
}

func TestExecuteMalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	res, err := pinnedClient(srv.URL).Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   "print(1)",
	})
	if err != nil {
		t.Fatalf("expected failure as result data, got error: %v", err)
	}
	if res.Failure != result.FailureRemote {
		t.Fatalf("expected a remote failure, got %q", res.Failure)
	}
	if !strings.Contains(res.Stderr, "malformed JSON") {
		t.Fatalf("expected malformed JSON diagnostic, got %q", res.Stderr)
	}
}

func TestExecuteUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	res, err := pinnedClient(srv.URL).Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   "print(1)",
	})
	if err != nil {
		t.Fatalf("expected failure as result data, got error: %v", err)
	}
	if res.Failure != result.FailureRemote {
		t.Fatalf("expected a remote failure, got %q", res.Failure)
	}
	if !strings.Contains(res.Stderr, "unreachable") {
		t.Fatalf("expected unreachable diagnostic, got %q", res.Stderr)
	}
}

func TestVersionDiscovery(t *testing.T) {
	t.Parallel()

	var runtimeCalls atomic.Int64
	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/runtimes":
			runtimeCalls.Add(1)
			_, _ = w.Write([]byte(`[{"language":"go","version":"1.16.2"},{"language":"python","version":"3.12.0","aliases":["py"]}]`))
		case "/execute":
			_ = json.NewDecoder(r.Body).Decode(&captured)
			_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":0}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := piston.NewClient(piston.Config{BaseURL: srv.URL})
	for i := 0; i < 2; i++ {
		if _, err := client.Execute(context.Background(), spec.Request{
			Language: language.Python,
			Source:   "print(1)",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if captured.Version != "3.12.0" {
		t.Fatalf("expected discovered version 3.12.0, got %q", captured.Version)
	}
	if got := runtimeCalls.Load(); got != 1 {
		t.Fatalf("expected one discovery call per process, got %d", got)
	}
}

func TestVersionDiscoveryMatchesAliases(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/runtimes":
			_, _ = w.Write([]byte(`[{"language":"gcc","version":"12.0.0","aliases":["c++","cpp"]}]`))
		case "/execute":
			_ = json.NewDecoder(r.Body).Decode(&captured)
			_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":0}}`))
		}
	}))
	defer srv.Close()

	client := piston.NewClient(piston.Config{BaseURL: srv.URL})
	if _, err := client.Execute(context.Background(), spec.Request{
		Language: language.CPP,
		Source:   "int main() { return 0; }",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Version != "12.0.0" {
		t.Fatalf("expected alias-matched version 12.0.0, got %q", captured.Version)
	}
}

func TestVersionDiscoveryFallsBackToDefault(t *testing.T) {
	t.Parallel()

	var captured capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/runtimes":
			http.Error(w, "nope", http.StatusInternalServerError)
		case "/execute":
			_ = json.NewDecoder(r.Body).Decode(&captured)
			_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":0}}`))
		}
	}))
	defer srv.Close()

	client := piston.NewClient(piston.Config{BaseURL: srv.URL})
	if _, err := client.Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   "print(1)",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Version != "3.10.0" {
		t.Fatalf("expected built-in default version, got %q", captured.Version)
	}
}

func TestVersionPinSkipsDiscovery(t *testing.T) {
	t.Parallel()

	var runtimeCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/runtimes" {
			runtimeCalls.Add(1)
		}
		_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":0}}`))
	}))
	defer srv.Close()

	client := piston.NewClient(piston.Config{
		BaseURL:  srv.URL,
		Versions: map[string]string{"python": "9.9.9"},
	})
	if _, err := client.Execute(context.Background(), spec.Request{
		Language: language.Python,
		Source:   "print(1)",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := runtimeCalls.Load(); got != 0 {
		t.Fatalf("expected no discovery call for a pinned version, got %d", got)
	}
}

func TestRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()

	client := piston.NewClient(piston.Config{BaseURL: "http://127.0.0.1:0"})
	_, err := client.Execute(context.Background(), spec.Request{
		Language: language.Language("ruby"),
		Source:   "puts 1",
	})
	if err == nil {
		t.Fatalf("expected an error for an unknown language")
	}
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported code, got %d", appErr.GetCode(err))
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"","code":0}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := pinnedClient(srv.URL).Execute(ctx, spec.Request{
		Language: language.Python,
		Source:   "print(1)",
	})
	if err == nil {
		t.Fatalf("expected an error when the context is cancelled")
	}
	if appErr.GetCode(err) != appErr.Canceled {
		t.Fatalf("expected Canceled code, got %d", appErr.GetCode(err))
	}
}
