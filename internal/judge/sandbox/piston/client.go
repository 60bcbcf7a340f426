// Package piston talks to a Piston-compatible execution API. It is the
// fallback executor when local toolchains are unavailable or remote mode is
// forced. Transport and protocol failures come back as result data so the
// orchestrator can still judge the submission.
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

const (
	// DefaultBaseURL is the public Piston endpoint.
	DefaultBaseURL = "https://emkc.org/api/v2/piston"

	defaultTimeout       = 15 * time.Second
	bodySnippetMaxBytes  = 512
	defaultTimeoutStderr = "Time limit exceeded"
)

// Config tunes the client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration     // per-request HTTP budget
	Versions map[string]string // optional per-language version pins
}

// Client executes submissions on a remote Piston-compatible service.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	resolved map[language.Language]string // discovered versions, process lifetime
}

// NewClient creates a client, applying defaults for zero config fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		resolved: make(map[language.Language]string),
	}
}

type requestFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type executeRequest struct {
	Language       string        `json:"language"`
	Version        string        `json:"version"`
	Files          []requestFile `json:"files"`
	Stdin          string        `json:"stdin"`
	CompileTimeout int64         `json:"compile_timeout,omitempty"`
	RunTimeout     int64         `json:"run_timeout,omitempty"`
}

type stageResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Output string `json:"output"`
	Code   *int   `json:"code"`
	Signal string `json:"signal"`
}

type executeResponse struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Run      stageResult  `json:"run"`
	Compile  *stageResult `json:"compile,omitempty"`
}

type runtimeInfo struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

// Execute runs one request remotely. Network failures, bad statuses and
// malformed payloads all map onto result data; the only error returns are
// for unsupported languages and cancelled contexts.
func (c *Client) Execute(ctx context.Context, req spec.Request) (result.Execution, error) {
	tc, ok := language.Lookup(req.Language)
	if !ok {
		return result.Execution{}, appErr.Newf(appErr.LanguageNotSupported, "unsupported language %q", req.Language)
	}

	payload := executeRequest{
		Language:       tc.Runtime.Name,
		Version:        c.resolveVersion(ctx, tc),
		Files:          []requestFile{{Name: tc.SourceFile, Content: req.Source}},
		Stdin:          req.Stdin,
		RunTimeout:     req.Timeout().Milliseconds(),
		CompileTimeout: 10000,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return result.Execution{}, appErr.Wrap(err, appErr.JudgeSystemError)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return result.Execution{}, appErr.Wrap(err, appErr.JudgeSystemError)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return result.Execution{}, appErr.Wrap(ctx.Err(), appErr.Canceled)
		}
		return result.RemoteFailure(fmt.Sprintf("execution service unreachable: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return result.RemoteFailure(fmt.Sprintf("execution service response unreadable: %v", err)), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result.RemoteFailure(fmt.Sprintf(
			"execution service responded with status %d: %s", resp.StatusCode, snippet(respBody))), nil
	}

	var parsed executeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return result.RemoteFailure(fmt.Sprintf(
			"execution service returned malformed JSON: %s", snippet(respBody))), nil
	}

	elapsed := time.Since(start).Milliseconds()

	if parsed.Compile != nil && exitCode(parsed.Compile.Code) != 0 {
		diag := parsed.Compile.Stderr
		if strings.TrimSpace(diag) == "" {
			diag = parsed.Compile.Output
		}
		return result.CompileFailure(diag, elapsed), nil
	}

	res := result.Execution{
		Stdout:    parsed.Run.Stdout,
		Stderr:    parsed.Run.Stderr,
		ExitCode:  exitCode(parsed.Run.Code),
		TimedOut:  parsed.Run.Signal == "SIGKILL",
		RuntimeMs: elapsed,
	}
	if res.TimedOut && strings.TrimSpace(res.Stderr) == "" {
		res.Stderr = defaultTimeoutStderr
	}
	return res, nil
}

// resolveVersion picks the runtime version to request: an operator pin
// first, then the discovered runtime list (cached for the process
// lifetime), then the built-in default.
func (c *Client) resolveVersion(ctx context.Context, tc language.Toolchain) string {
	if pin := c.cfg.Versions[string(tc.Lang)]; pin != "" {
		return pin
	}

	c.mu.Lock()
	cached, ok := c.resolved[tc.Lang]
	c.mu.Unlock()
	if ok {
		return cached
	}

	runtimes, err := c.fetchRuntimes(ctx)
	if err != nil {
		logger.Warn(ctx, "runtime discovery failed, using default version",
			zap.String("language", string(tc.Lang)),
			zap.String("version", tc.Runtime.Version),
			zap.Error(err))
		return tc.Runtime.Version
	}

	version := tc.Runtime.Version
	for _, rt := range runtimes {
		if matchesRuntime(rt, tc.Runtime.Name) {
			version = rt.Version
			break
		}
	}

	c.mu.Lock()
	c.resolved[tc.Lang] = version
	c.mu.Unlock()
	return version
}

func (c *Client) fetchRuntimes(ctx context.Context) ([]runtimeInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/runtimes", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("runtimes endpoint returned status %d", resp.StatusCode)
	}

	var runtimes []runtimeInfo
	if err := json.NewDecoder(resp.Body).Decode(&runtimes); err != nil {
		return nil, fmt.Errorf("decode runtimes: %w", err)
	}
	return runtimes, nil
}

func matchesRuntime(rt runtimeInfo, name string) bool {
	if strings.EqualFold(rt.Language, name) {
		return true
	}
	for _, alias := range rt.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

func exitCode(code *int) int {
	if code == nil {
		return -1
	}
	return *code
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodySnippetMaxBytes {
		s = s[:bodySnippetMaxBytes] + "..."
	}
	return s
}
