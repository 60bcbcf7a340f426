// Package service orchestrates judging: it validates submissions, runs each
// test case through the execution layer and aggregates case verdicts into a
// submission verdict.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/model"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/repository"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/verdict"
	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/contextkey"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/logger"
)

const (
	defaultMaxSourceBytes = 256 << 10
	defaultMaxTestCases   = 200
	defaultMaxTimeLimitMs = 30_000
	defaultPoolSize       = 4
	defaultStoreTimeout   = 3 * time.Second
	slotWait              = 2 * time.Second
)

// Service handles judge requests.
type Service struct {
	exec  sandbox.Executor
	store *repository.RecordStore

	defaultTimeLimitMs int64
	maxTimeLimitMs     int64
	comparisonMode     verdict.Mode
	includeDiff        bool
	maxSourceBytes     int
	maxTestCases       int
	errorMaxLen        int
	storeTimeout       time.Duration

	sem chan struct{}

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
}

// Config holds service dependencies and settings.
type Config struct {
	Executor sandbox.Executor
	// Store is optional; without it only synchronous Run is available.
	Store              *repository.RecordStore
	DefaultTimeLimitMs int64
	MaxTimeLimitMs     int64
	ComparisonMode     string
	IncludeDiff        bool
	MaxSourceBytes     int
	MaxTestCases       int
	ErrorMaxLen        int
	WorkerPoolSize     int
	StoreTimeout       time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	mode, err := verdict.ParseMode(cfg.ComparisonMode)
	if err != nil {
		return nil, err
	}
	defaultLimit := cfg.DefaultTimeLimitMs
	if defaultLimit <= 0 {
		defaultLimit = spec.DefaultTimeLimitMs
	}
	maxLimit := cfg.MaxTimeLimitMs
	if maxLimit <= 0 {
		maxLimit = defaultMaxTimeLimitMs
	}
	maxSource := cfg.MaxSourceBytes
	if maxSource <= 0 {
		maxSource = defaultMaxSourceBytes
	}
	maxCases := cfg.MaxTestCases
	if maxCases <= 0 {
		maxCases = defaultMaxTestCases
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Service{
		exec:               cfg.Executor,
		store:              cfg.Store,
		defaultTimeLimitMs: defaultLimit,
		maxTimeLimitMs:     maxLimit,
		comparisonMode:     mode,
		includeDiff:        cfg.IncludeDiff,
		maxSourceBytes:     maxSource,
		maxTestCases:       maxCases,
		errorMaxLen:        cfg.ErrorMaxLen,
		storeTimeout:       storeTimeout,
		sem:                make(chan struct{}, poolSize),
		jobs:               make(map[string]context.CancelFunc),
	}, nil
}

// Run judges a submission synchronously and returns the full per-case report.
// It leaves no record behind; cancellation is the caller's context.
func (s *Service) Run(ctx context.Context, sub model.Submission) (model.Report, error) {
	job, err := s.prepare(sub)
	if err != nil {
		return model.Report{}, err
	}
	if err := s.acquireSlot(ctx); err != nil {
		return model.Report{}, err
	}
	defer s.releaseSlot()

	submissionID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)
	job.receivedAt = time.Now().UnixMilli()

	logger.Info(ctx, "judging submission",
		zap.String("language", string(job.lang)),
		zap.Int("test_cases", len(job.sub.TestCases)))

	report, err := s.judge(ctx, submissionID, job, nil)
	if err != nil {
		return model.Report{}, err
	}
	logger.Info(ctx, "submission judged",
		zap.String("status", string(report.Verdict.Status)),
		zap.Int("tests_passed", report.Verdict.TestsPassed),
		zap.Int("total_tests", report.Verdict.TotalTests))
	return report, nil
}

// Submit accepts a submission for asynchronous judging and returns the
// pending record. Progress is observable through Get until the record
// expires.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (model.Record, error) {
	if s.store == nil {
		return model.Record{}, appErr.New(appErr.ServiceUnavailable).WithMessage("record store is not configured")
	}
	job, err := s.prepare(sub)
	if err != nil {
		return model.Record{}, err
	}
	if !s.tryAcquireSlot() {
		return model.Record{}, appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}

	submissionID := uuid.NewString()
	job.receivedAt = time.Now().UnixMilli()

	// Detach from the request context so the job survives the HTTP response,
	// keeping trace values for the logs.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jobCtx = context.WithValue(jobCtx, contextkey.SubmissionID, submissionID)

	pending := model.Record{
		SubmissionID: submissionID,
		State:        model.StatePending,
		TotalCases:   len(job.sub.TestCases),
		Language:     string(job.lang),
		ReceivedAt:   job.receivedAt,
	}
	if err := s.saveRecord(jobCtx, pending); err != nil {
		cancel()
		s.releaseSlot()
		return model.Record{}, err
	}
	s.track(submissionID, cancel)

	go s.runAsync(jobCtx, submissionID, job)

	logger.Info(jobCtx, "submission accepted",
		zap.String("language", string(job.lang)),
		zap.Int("test_cases", len(job.sub.TestCases)))
	return pending, nil
}

// Get returns the progress record for a submission id.
func (s *Service) Get(ctx context.Context, submissionID string) (model.Record, error) {
	if s.store == nil {
		return model.Record{}, appErr.New(appErr.ServiceUnavailable).WithMessage("record store is not configured")
	}
	return s.store.Get(ctx, submissionID)
}

// Cancel stops a running submission and discards its partial results.
func (s *Service) Cancel(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	cancel, ok := s.takeJob(submissionID)
	if !ok {
		if s.store != nil {
			if _, err := s.store.Get(ctx, submissionID); err == nil {
				return appErr.New(appErr.SubmissionNotRunning).WithMessage("submission already finished")
			}
		}
		return appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	}
	cancel()
	s.discardRecord(ctx, submissionID)
	logger.Info(ctx, "submission cancelled", zap.String("submission_id", submissionID))
	return nil
}

func (s *Service) track(submissionID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.jobs[submissionID] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(submissionID string) {
	s.mu.Lock()
	delete(s.jobs, submissionID)
	s.mu.Unlock()
}

func (s *Service) takeJob(submissionID string) (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.jobs[submissionID]
	if ok {
		delete(s.jobs, submissionID)
	}
	return cancel, ok
}

func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(slotWait):
		return appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}

func (s *Service) tryAcquireSlot() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}
