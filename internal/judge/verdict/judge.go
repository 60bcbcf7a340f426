package verdict

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

// Mode selects how outputs are compared.
type Mode string

const (
	// ModeRelaxed ignores whitespace runs and letter case. The default.
	ModeRelaxed Mode = "relaxed"
	// ModeStrict compares exactly, after newline normalization and a trim.
	ModeStrict Mode = "strict"
)

const defaultErrorMaxLen = 4096

// ParseMode validates a raw comparison mode, defaulting empty to relaxed.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return ModeRelaxed, nil
	case ModeRelaxed:
		return ModeRelaxed, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", appErr.Newf(appErr.InvalidValue, "unknown comparison mode %q", raw)
	}
}

// Normalize applies the comparison pipeline: newline normalization first,
// then whitespace collapsing and lowercasing under relaxed mode, or a plain
// trim under strict mode. Normalizing twice changes nothing.
func Normalize(s string, mode Mode) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if mode == ModeRelaxed {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	return strings.TrimSpace(s)
}

// Match reports whether the actual output satisfies the expected output
// under the mode.
func Match(actual, expected string, mode Mode) bool {
	return Normalize(actual, mode) == Normalize(expected, mode)
}

// Options controls per-case judging.
type Options struct {
	Mode        Mode
	IncludeDiff bool // attach a unified diff to failed comparisons
	ErrorMaxLen int  // user-visible error truncation, 0 = default
}

// JudgeCase turns one execution into a case verdict. A case with expected
// output passes purely on output equality; a case without expected output
// passes on clean execution (zero exit, empty stderr, no timeout). Output
// presence alone never passes a case.
func JudgeCase(opts Options, idx int, exec result.Execution, expected string) CaseVerdict {
	cv := CaseVerdict{
		Case:         idx,
		ActualOutput: exec.Stdout,
		TimedOut:     exec.TimedOut,
		RuntimeMs:    exec.RuntimeMs,
		PeakMemoryKB: exec.PeakMemoryKB,
	}

	maxLen := opts.ErrorMaxLen
	if maxLen <= 0 {
		maxLen = defaultErrorMaxLen
	}

	switch {
	case exec.Failed() || exec.TimedOut:
		cv.Error = truncate(exec.Stderr, maxLen)
	case expected == "":
		cv.Passed = exec.ExitCode == 0 && strings.TrimSpace(exec.Stderr) == ""
		if !cv.Passed {
			cv.Error = truncate(nonEmpty(exec.Stderr, "program exited abnormally"), maxLen)
		}
	default:
		cv.Passed = Match(exec.Stdout, expected, opts.Mode)
		if !cv.Passed {
			cv.Error = truncate(exec.Stderr, maxLen)
			if opts.IncludeDiff {
				cv.Diff = unifiedDiff(expected, exec.Stdout)
			}
		}
	}

	return cv
}

func unifiedDiff(expected, actual string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.ReplaceAll(expected, "\r\n", "\n")),
		B:        difflib.SplitLines(strings.ReplaceAll(actual, "\r\n", "\n")),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
