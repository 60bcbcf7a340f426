package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	appErr "github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

func TestGetCode(t *testing.T) {
	t.Parallel()

	if got := appErr.GetCode(nil); got != appErr.Success {
		t.Fatalf("expected Success for nil, got %d", got)
	}
	if got := appErr.GetCode(fmt.Errorf("plain")); got != appErr.InternalServerError {
		t.Fatalf("expected InternalServerError for a plain error, got %d", got)
	}
	if got := appErr.GetCode(appErr.New(appErr.SubmissionNotFound)); got != appErr.SubmissionNotFound {
		t.Fatalf("expected SubmissionNotFound, got %d", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("connection refused")
	wrapped := appErr.Wrapf(cause, appErr.StoreError, "load record failed")

	if !stderrors.Is(wrapped, cause) {
		t.Fatalf("expected the cause to be reachable through Unwrap")
	}
	if !appErr.Is(wrapped, appErr.StoreError) {
		t.Fatalf("expected StoreError code, got %d", appErr.GetCode(wrapped))
	}
	if wrapped.Error() != "load record failed" {
		t.Fatalf("expected the wrap message, got %q", wrapped.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code     appErr.ErrorCode
		expected int
	}{
		{appErr.Success, 200},
		{appErr.InvalidParams, 400},
		{appErr.ValidationFailed, 400},
		{appErr.EmptySource, 400},
		{appErr.LanguageNotSupported, 400},
		{appErr.TooManyTestCases, 400},
		{appErr.NotFound, 404},
		{appErr.SubmissionNotFound, 404},
		{appErr.JudgeQueueFull, 429},
		{appErr.ServiceUnavailable, 503},
		{appErr.RemoteCircuitOpen, 503},
		{appErr.ToolchainMissing, 500},
		{appErr.InternalServerError, 500},
	}

	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.expected {
			t.Fatalf("code %d: expected status %d, got %d", tc.code, tc.expected, got)
		}
	}
}

func TestValidationErrorDetails(t *testing.T) {
	t.Parallel()

	err := appErr.ValidationError("test_cases", "required")
	if !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %d", appErr.GetCode(err))
	}
	if err.Details["field"] != "test_cases" || err.Details["reason"] != "required" {
		t.Fatalf("expected field details, got %+v", err.Details)
	}
}
