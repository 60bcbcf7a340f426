// Package controller exposes the judge engine over HTTP.
package controller

import (
	"github.com/gin-gonic/gin"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/model"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/service"
	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/utils/response"
)

// JudgeController handles judge HTTP endpoints.
type JudgeController struct {
	judgeService *service.Service
}

// NewJudgeController creates a new controller.
func NewJudgeController(judgeService *service.Service) *JudgeController {
	return &JudgeController{judgeService: judgeService}
}

// Run judges a submission synchronously and returns the full per-case report.
func (h *JudgeController) Run(c *gin.Context) {
	var req JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	report, err := h.judgeService.Run(c.Request.Context(), req.toSubmission())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// Submit accepts a submission for asynchronous judging.
func (h *JudgeController) Submit(c *gin.Context) {
	var req JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	record, err := h.judgeService.Submit(c.Request.Context(), req.toSubmission())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{
		SubmissionID: record.SubmissionID,
		State:        string(record.State),
		TotalCases:   record.TotalCases,
		ReceivedAt:   record.ReceivedAt,
	})
}

// GetSubmission returns the progress record for one submission.
func (h *JudgeController) GetSubmission(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	record, err := h.judgeService.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, record)
}

// Cancel stops a running submission and discards its partial results.
func (h *JudgeController) Cancel(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	if err := h.judgeService.Cancel(c.Request.Context(), submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, CancelResponse{SubmissionID: submissionID, Cancelled: true})
}

// JudgeRequest defines a judging payload.
type JudgeRequest struct {
	Language       string          `json:"language" binding:"required"`
	Source         string          `json:"source" binding:"required"`
	TestCases      []TestCaseInput `json:"testCases" binding:"required"`
	ComparisonMode string          `json:"comparisonMode"`
	TimeLimitMs    int64           `json:"timeLimitMs"`
}

// TestCaseInput defines one test case in a judging payload.
type TestCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

func (r JudgeRequest) toSubmission() model.Submission {
	cases := make([]model.TestCase, 0, len(r.TestCases))
	for _, tc := range r.TestCases {
		cases = append(cases, model.TestCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput})
	}
	return model.Submission{
		Language:       r.Language,
		Source:         r.Source,
		TestCases:      cases,
		ComparisonMode: r.ComparisonMode,
		TimeLimitMs:    r.TimeLimitMs,
	}
}

// SubmitResponse defines an accepted-submission response payload.
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	State        string `json:"state"`
	TotalCases   int    `json:"totalCases"`
	ReceivedAt   int64  `json:"receivedAt"`
}

// CancelResponse defines a cancellation response payload.
type CancelResponse struct {
	SubmissionID string `json:"submissionId"`
	Cancelled    bool   `json:"cancelled"`
}
