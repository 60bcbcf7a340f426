// Package verdict holds the judging domain: per-case comparison, case
// verdicts and the aggregate submission verdict.
package verdict

// Status is the aggregate outcome of a submission.
type Status string

const (
	Accepted          Status = "Accepted"
	WrongAnswer       Status = "Wrong Answer"
	PartialCorrect    Status = "Partial Correct"
	CompilationError  Status = "Compilation Error"
	RuntimeError      Status = "Runtime Error"
	TimeLimitExceeded Status = "Time Limit Exceeded"
)

// CaseVerdict is the judged outcome of one test case.
type CaseVerdict struct {
	Case         int    `json:"case"` // 1-based position in the submission
	Passed       bool   `json:"passed"`
	ActualOutput string `json:"actualOutput"`
	Error        string `json:"error,omitempty"`
	Diff         string `json:"diff,omitempty"`
	TimedOut     bool   `json:"timedOut,omitempty"`
	RuntimeMs    int64  `json:"runtimeMs"`
	PeakMemoryKB int64  `json:"peakMemoryKb,omitempty"`
}

// SubmissionVerdict aggregates all judged cases.
type SubmissionVerdict struct {
	Status       Status `json:"status"`
	TestsPassed  int    `json:"testsPassed"`
	TotalTests   int    `json:"totalTests"`
	RuntimeMs    int64  `json:"runtimeMs"`              // summed across executed cases
	PeakMemoryKB int64  `json:"peakMemoryKb,omitempty"` // max across executed cases
	FailedCase   int    `json:"failedCase,omitempty"`   // first failed case, 1-based
}

// Tally carries the signals the aggregate status is derived from.
type Tally struct {
	Total         int
	Passed        int
	CompileFailed bool
	TimedOut      bool // sticky: any case hit the time limit
	RuntimeError  bool // any case exited abnormally
}

// Resolve maps a tally onto the final status. A compile failure beats
// everything; otherwise pass counts decide, with time limit outranking
// runtime error when nothing passed.
func Resolve(t Tally) Status {
	switch {
	case t.CompileFailed:
		return CompilationError
	case t.Total > 0 && t.Passed == t.Total:
		return Accepted
	case t.Passed > 0:
		return PartialCorrect
	case t.TimedOut:
		return TimeLimitExceeded
	case t.RuntimeError:
		return RuntimeError
	default:
		return WrongAnswer
	}
}
