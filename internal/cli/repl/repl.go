package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/gorilla/websocket"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/command"
	httpclient "github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/http"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/cli/state"
	pkgerrors "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

const prompt = "judge> "

// Session holds REPL state.
type Session struct {
	client       *httpclient.Client
	commands     map[string]command.Command
	sess         *state.SessionState
	statePath    string
	historyPath  string
	prettyJSON   bool
	outputWriter *bufio.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, sess *state.SessionState, statePath, historyPath string, prettyJSON bool) *Session {
	return &Session{
		client:       client,
		commands:     commands,
		sess:         sess,
		statePath:    statePath,
		historyPath:  historyPath,
		prettyJSON:   prettyJSON,
		outputWriter: bufio.NewWriter(os.Stdout),
	}
}

func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     s.historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.handleSystemCommand(rl, line) {
			continue
		}

		if err := s.handleCommand(ctx, rl, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("judge",
			readline.PcItem("run"),
			readline.PcItem("submit"),
			readline.PcItem("status"),
			readline.PcItem("cancel"),
			readline.PcItem("watch"),
		),
		readline.PcItem("set",
			readline.PcItem("base"),
			readline.PcItem("timeout"),
			readline.PcItem("language"),
			readline.PcItem("comparison"),
			readline.PcItem("timelimit"),
		),
		readline.PcItem("show",
			readline.PcItem("config"),
			readline.PcItem("last"),
		),
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

func (s *Session) handleSystemCommand(rl *readline.Instance, line string) bool {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		_ = rl.Close()
		os.Exit(0)
	case "help":
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|language|comparison|timelimit")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8085")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "language":
		if len(parts) < 2 {
			s.printLine("usage: set language python")
			return
		}
		s.sess.DefaultLanguage = parts[1]
		s.saveState()
		s.printLine("default language set to %s", parts[1])
	case "comparison":
		if len(parts) < 2 {
			s.printLine("usage: set comparison relaxed|strict")
			return
		}
		s.sess.Comparison = parts[1]
		s.saveState()
		s.printLine("comparison set to %s", parts[1])
	case "timelimit":
		if len(parts) < 2 {
			s.printLine("usage: set timelimit 2000")
			return
		}
		limit, err := command.ParseInt64(parts[1])
		if err != nil || limit < 0 {
			s.printLine("invalid time limit: %s", parts[1])
			return
		}
		s.sess.TimeLimitMs = limit
		s.saveState()
		s.printLine("time limit set to %dms", limit)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
		s.printLine("defaultLanguage: %s", valueOr(s.sess.DefaultLanguage, "<unset>"))
		s.printLine("comparison: %s", valueOr(s.sess.Comparison, "<server default>"))
		if s.sess.TimeLimitMs > 0 {
			s.printLine("timeLimitMs: %d", s.sess.TimeLimitMs)
		} else {
			s.printLine("timeLimitMs: <server default>")
		}
	case "last":
		s.printLine("last submission: %s", valueOr(s.sess.LastSubmissionID, "<none>"))
	default:
		s.printLine("usage: show config|last")
	}
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (s *Session) handleCommand(ctx context.Context, rl *readline.Instance, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	service := tokens[0]
	action := tokens[1]
	key := fmt.Sprintf("%s %s", service, action)
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", service, action)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}

	s.applyParamShortcuts(&cmd, params)
	if err := s.promptMissing(rl, &cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	if cmd.Streaming {
		return s.watchStream(ctx, req.Path)
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.updateStateFromResponse(cmd, resp.Body)
	return nil
}

// applyParamShortcuts fills session defaults so repeat interactions stay
// short: the remembered language/comparison/time limit on run and submit,
// and the last submission id on status, cancel and watch.
func (s *Session) applyParamShortcuts(cmd *command.Command, params command.Params) {
	switch cmd.Action {
	case "run", "submit":
		if params.Get("source_file") != "" && params.Get("source") == "" {
			params.Set("source", "_file_")
		}
		if params.Get("language") == "" && s.sess.DefaultLanguage != "" {
			params.Set("language", s.sess.DefaultLanguage)
		}
		if params.Get("comparison") == "" && s.sess.Comparison != "" {
			params.Set("comparison", s.sess.Comparison)
		}
		if params.Get("time_limit_ms") == "" && s.sess.TimeLimitMs > 0 {
			params.Set("time_limit_ms", fmt.Sprintf("%d", s.sess.TimeLimitMs))
		}
	case "status", "cancel", "watch":
		if params.Get("id") == "" && s.sess.LastSubmissionID != "" {
			params.Set("id", s.sess.LastSubmissionID)
		}
	}
}

func (s *Session) promptMissing(rl *readline.Instance, cmd *command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(rl, field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(rl *readline.Instance, fieldPrompt string) (string, error) {
	rl.SetPrompt(fieldPrompt + ": ")
	defer rl.SetPrompt(prompt)
	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// watchStream follows the websocket progress feed until the server reports a
// terminal state and closes the stream.
func (s *Session) watchStream(ctx context.Context, path string) error {
	wsURL := "ws" + strings.TrimPrefix(s.client.BaseURL(), "http") + path
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				s.printJSON(body)
			}
		}
		return fmt.Errorf("watch dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.printLine("stream closed")
				return nil
			}
			return fmt.Errorf("watch stream failed: %w", err)
		}
		s.printJSON(message)
	}
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	s.printJSON(resp.Body)
}

func (s *Session) printJSON(body []byte) {
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(body))
}

// updateStateFromResponse remembers the id of an accepted submission so the
// next status/cancel/watch can omit it.
func (s *Session) updateStateFromResponse(cmd command.Command, body []byte) {
	if cmd.Action != "submit" {
		return
	}
	type submitData struct {
		SubmissionID string `json:"submissionId"`
	}
	type respEnvelope struct {
		Code int        `json:"code"`
		Data submitData `json:"data"`
	}
	var resp respEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	if resp.Code != int(pkgerrors.Success) || resp.Data.SubmissionID == "" {
		return
	}
	s.sess.LastSubmissionID = resp.Data.SubmissionID
	s.saveState()
}

func (s *Session) saveState() {
	if err := state.Save(s.statePath, *s.sess); err != nil {
		s.printLine("save session state failed: %v", err)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: judge <action> key=value ...")
	s.printLine("actions: run | submit | status | cancel | watch")
	s.printLine("system: help | exit | set base|timeout|language|comparison|timelimit | show config|last")
	s.printLine("examples:")
	s.printLine("  judge run language=python source_file=./main.py input=\"1 2\" expected=\"3\"")
	s.printLine("  judge submit language=cpp source_file=./main.cpp cases_file=./cases.json")
	s.printLine("  judge status        (uses the last submitted id)")
	s.printLine("  judge watch id=7b0c2f")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}
