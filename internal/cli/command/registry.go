package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "judge",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/run",
			Fields:       submissionFields(),
		},
		{
			Service:      "judge",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/submissions",
			Fields:       submissionFields(),
		},
		{
			Service:      "judge",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"sid"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "judge",
			Action:       "cancel",
			Method:       "DELETE",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"sid"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "judge",
			Action:       "watch",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id/watch",
			Streaming:    true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"sid"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

func submissionFields() []Field {
	return []Field{
		{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
		{Name: "source", Aliases: []string{"source_code", "code"}, Prompt: "source", Type: FieldString, Required: true},
		{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile, Required: false},
		{Name: "cases_json", Aliases: []string{"cases"}, Prompt: "cases_json (JSON array)", Type: FieldJSON, Required: false},
		{Name: "cases_file", Prompt: "cases_file", Type: FieldFile, Required: false},
		{Name: "input", Aliases: []string{"stdin"}, Prompt: "input", Type: FieldString, Required: false},
		{Name: "expected", Aliases: []string{"expected_output"}, Prompt: "expected", Type: FieldString, Required: false},
		{Name: "time_limit_ms", Aliases: []string{"timelimit"}, Prompt: "time_limit_ms", Type: FieldInt64, Required: false},
		{Name: "comparison", Aliases: []string{"mode"}, Prompt: "comparison (relaxed|strict)", Type: FieldString, Required: false},
	}
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method: cmd.Method,
		Path:   path,
		Body:   body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", value)
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Action {
	case "run", "submit":
		return buildSubmissionPayload(params)
	}
	return nil, nil
}

type testCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

func buildSubmissionPayload(params Params) (interface{}, error) {
	source := params.Get("source")
	if (source == "" || source == "_file_") && params.Get("source_file") != "" {
		var err error
		source, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if source == "" {
		return nil, fmt.Errorf("source is required (inline or via source_file)")
	}

	cases, err := buildTestCases(params)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"language":  params.Get("language"),
		"source":    source,
		"testCases": cases,
	}
	if params.Get("comparison") != "" {
		payload["comparisonMode"] = params.Get("comparison")
	}
	if params.Get("time_limit_ms") != "" {
		limit, err := ParseInt64(params.Get("time_limit_ms"))
		if err != nil {
			return nil, fmt.Errorf("invalid time_limit_ms: %w", err)
		}
		payload["timeLimitMs"] = limit
	}
	return payload, nil
}

// buildTestCases resolves the test case list in precedence order: an explicit
// JSON array (inline or from a file) wins, then a single input/expected pair,
// then one empty case so a bare program can still be run.
func buildTestCases(params Params) ([]testCaseInput, error) {
	raw := ""
	if params.Get("cases_file") != "" {
		data, err := ReadFile(params.Get("cases_file"))
		if err != nil {
			return nil, err
		}
		raw = data
	} else if params.Get("cases_json") != "" && params.Get("cases_json") != "_file_" {
		raw = params.Get("cases_json")
	}

	if raw != "" {
		var cases []testCaseInput
		if err := json.Unmarshal([]byte(raw), &cases); err != nil {
			return nil, fmt.Errorf("invalid cases json, want [{\"input\":...,\"expectedOutput\":...}]: %w", err)
		}
		if len(cases) == 0 {
			return nil, fmt.Errorf("cases json is empty")
		}
		return cases, nil
	}

	return []testCaseInput{{
		Input:          params.Get("input"),
		ExpectedOutput: params.Get("expected"),
	}}, nil
}
