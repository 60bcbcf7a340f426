package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/model"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/verdict"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

type judgeJob struct {
	sub         model.Submission
	lang        language.Language
	opts        verdict.Options
	timeLimitMs int64
	receivedAt  int64
}

func (s *Service) prepare(sub model.Submission) (judgeJob, error) {
	lang, err := language.Parse(sub.Language)
	if err != nil {
		return judgeJob{}, err
	}
	if strings.TrimSpace(sub.Source) == "" {
		return judgeJob{}, appErr.New(appErr.EmptySource).WithMessage("source code is empty")
	}
	if len(sub.Source) > s.maxSourceBytes {
		return judgeJob{}, appErr.Newf(appErr.CodeTooLarge, "source exceeds %d bytes", s.maxSourceBytes)
	}
	if len(sub.TestCases) == 0 {
		return judgeJob{}, appErr.ValidationError("test_cases", "required")
	}
	if len(sub.TestCases) > s.maxTestCases {
		return judgeJob{}, appErr.Newf(appErr.TooManyTestCases, "at most %d test cases per submission", s.maxTestCases)
	}

	mode := s.comparisonMode
	if sub.ComparisonMode != "" {
		mode, err = verdict.ParseMode(sub.ComparisonMode)
		if err != nil {
			return judgeJob{}, err
		}
	}

	timeLimit := sub.TimeLimitMs
	if timeLimit <= 0 {
		timeLimit = s.defaultTimeLimitMs
	}
	if timeLimit > s.maxTimeLimitMs {
		timeLimit = s.maxTimeLimitMs
	}

	return judgeJob{
		sub:         sub,
		lang:        lang,
		timeLimitMs: timeLimit,
		opts: verdict.Options{
			Mode:        mode,
			IncludeDiff: s.includeDiff,
			ErrorMaxLen: s.errorMaxLen,
		},
	}, nil
}

// judge runs the cases in order. emit, when non-nil, receives a record at
// every state transition; the terminal record is the caller's business.
func (s *Service) judge(ctx context.Context, submissionID string, job judgeJob, emit func(model.Record)) (model.Report, error) {
	base := model.Record{
		SubmissionID: submissionID,
		TotalCases:   len(job.sub.TestCases),
		Language:     string(job.lang),
		ReceivedAt:   job.receivedAt,
	}
	publish := func(mutate func(*model.Record)) {
		if emit == nil {
			return
		}
		r := base
		mutate(&r)
		emit(r)
	}

	publish(func(r *model.Record) { r.State = model.StateCompiling })

	var (
		tally     = verdict.Tally{Total: len(job.sub.TestCases)}
		cases     = make([]verdict.CaseVerdict, 0, len(job.sub.TestCases))
		runtimeMs int64
		peakKB    int64
	)
	for i, tc := range job.sub.TestCases {
		caseNo := i + 1
		publish(func(r *model.Record) {
			r.State = model.StateRunning
			r.CurrentCase = caseNo
		})

		exec, err := s.exec.Execute(ctx, spec.Request{
			Language:    job.lang,
			Source:      job.sub.Source,
			Stdin:       tc.Input,
			TimeLimitMs: job.timeLimitMs,
		})
		if err != nil {
			return model.Report{}, err
		}

		cv := verdict.JudgeCase(job.opts, caseNo, exec, tc.ExpectedOutput)
		cases = append(cases, cv)
		runtimeMs += exec.RuntimeMs
		if exec.PeakMemoryKB > peakKB {
			peakKB = exec.PeakMemoryKB
		}
		if cv.Passed {
			tally.Passed++
		}
		if exec.TimedOut {
			tally.TimedOut = true
		}
		if exitedAbnormally(exec) {
			tally.RuntimeError = true
		}
		if exec.Failure == result.FailureCompile {
			// The same diagnostics would repeat for every remaining case.
			tally.CompileFailed = true
			logger.Info(ctx, "compilation failed, skipping remaining cases",
				zap.Int("case", caseNo))
			break
		}
	}

	report := model.Report{
		SubmissionID: submissionID,
		Verdict: verdict.SubmissionVerdict{
			Status:       verdict.Resolve(tally),
			TestsPassed:  tally.Passed,
			TotalTests:   tally.Total,
			RuntimeMs:    runtimeMs,
			PeakMemoryKB: peakKB,
			FailedCase:   firstFailedCase(cases),
		},
		Cases: cases,
	}
	return report, nil
}

func (s *Service) runAsync(ctx context.Context, submissionID string, job judgeJob) {
	defer s.releaseSlot()
	defer s.untrack(submissionID)

	emit := func(r model.Record) {
		if ctx.Err() != nil {
			return
		}
		if err := s.saveRecord(ctx, r); err != nil {
			logger.Warn(ctx, "save record failed", zap.Error(err))
		}
	}

	report, err := s.judge(ctx, submissionID, job, emit)
	if err != nil {
		if errors.Is(err, context.Canceled) || appErr.GetCode(err) == appErr.Canceled {
			logger.Info(ctx, "submission cancelled, partial results discarded")
			s.discardRecord(ctx, submissionID)
			return
		}
		logger.Error(ctx, "judging failed", zap.Error(err))
		failed := model.Record{
			SubmissionID: submissionID,
			State:        model.StateFailed,
			TotalCases:   len(job.sub.TestCases),
			Language:     string(job.lang),
			ErrorCode:    int(appErr.GetCode(err)),
			ErrorMessage: err.Error(),
			ReceivedAt:   job.receivedAt,
			FinishedAt:   time.Now().UnixMilli(),
		}
		if saveErr := s.saveRecord(ctx, failed); saveErr != nil {
			logger.Warn(ctx, "save failure record failed", zap.Error(saveErr))
		}
		return
	}

	judged := model.Record{
		SubmissionID: submissionID,
		State:        model.StateJudged,
		TotalCases:   len(job.sub.TestCases),
		Language:     string(job.lang),
		Verdict:      &report.Verdict,
		Cases:        report.Cases,
		ReceivedAt:   job.receivedAt,
		FinishedAt:   time.Now().UnixMilli(),
	}
	if ctx.Err() != nil {
		s.discardRecord(ctx, submissionID)
		return
	}
	if err := s.saveRecord(ctx, judged); err != nil {
		logger.Warn(ctx, "save judged record failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "submission judged",
		zap.String("status", string(report.Verdict.Status)),
		zap.Int("tests_passed", report.Verdict.TestsPassed),
		zap.Int("total_tests", report.Verdict.TotalTests))
}

func (s *Service) saveRecord(ctx context.Context, record model.Record) error {
	if s.store == nil {
		return nil
	}
	ctxStore := ctx
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctxStore, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}
	return s.store.Save(ctxStore, record)
}

// discardRecord removes a record on a fresh context: the job context is
// usually already cancelled when this runs.
func (s *Service) discardRecord(ctx context.Context, submissionID string) {
	if s.store == nil {
		return
	}
	ctxStore, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.store.Delete(ctxStore, submissionID); err != nil {
		logger.Warn(ctxStore, "discard record failed", zap.Error(err))
	}
}

// exitedAbnormally reports a runtime error signal: a local run that exited
// non-zero without timing out, or an execution the engine could not perform.
func exitedAbnormally(exec result.Execution) bool {
	if exec.TimedOut {
		return false
	}
	if exec.Failure == result.FailureToolchain || exec.Failure == result.FailureRemote {
		return true
	}
	return exec.Failure == result.FailureNone && exec.ExitCode != 0
}

func firstFailedCase(cases []verdict.CaseVerdict) int {
	for _, cv := range cases {
		if !cv.Passed {
			return cv.Case
		}
	}
	return 0
}
