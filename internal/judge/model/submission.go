// Package model defines the submission contract the engine accepts and the
// progress records it publishes.
package model

import (
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/verdict"
)

// TestCase pairs an input with its expected output. ExpectedOutput may be
// empty: such cases are judged on clean execution instead of comparison.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// Submission is the engine's input contract.
type Submission struct {
	Language       string     `json:"language"`
	Source         string     `json:"source"`
	TestCases      []TestCase `json:"testCases"`
	ComparisonMode string     `json:"comparisonMode,omitempty"` // relaxed (default) or strict
	TimeLimitMs    int64      `json:"timeLimitMs,omitempty"`    // per-case wall budget
}

// Report is the synchronous judging outcome with per-case detail.
type Report struct {
	SubmissionID string                    `json:"submissionId"`
	Verdict      verdict.SubmissionVerdict `json:"verdict"`
	Cases        []verdict.CaseVerdict     `json:"cases"`
}

// State is the lifecycle position of a submission being judged.
type State string

const (
	StatePending   State = "pending"
	StateCompiling State = "compiling"
	StateRunning   State = "running"
	StateJudged    State = "judged"
	StateFailed    State = "failed" // the engine itself broke, not the program
)

// Record is the observable progress and final outcome of a submission.
// Cancelled submissions leave no record behind.
type Record struct {
	SubmissionID string                     `json:"submissionId"`
	State        State                      `json:"state"`
	CurrentCase  int                        `json:"currentCase,omitempty"` // 1-based while running
	TotalCases   int                        `json:"totalCases"`
	Language     string                     `json:"language"`
	Verdict      *verdict.SubmissionVerdict `json:"verdict,omitempty"`
	Cases        []verdict.CaseVerdict      `json:"cases,omitempty"`
	ErrorCode    int                        `json:"errorCode,omitempty"`
	ErrorMessage string                     `json:"errorMessage,omitempty"`
	ReceivedAt   int64                      `json:"receivedAt"`           // unix milliseconds
	FinishedAt   int64                      `json:"finishedAt,omitempty"` // unix milliseconds
}

// Terminal reports whether the record will not change again.
func (r Record) Terminal() bool {
	return r.State == StateJudged || r.State == StateFailed
}
