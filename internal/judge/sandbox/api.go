// Package sandbox defines the executor contract and the dispatcher that
// routes each request to the in-process evaluator, the local subprocess
// driver or the remote execution service.
package sandbox

import (
	"context"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/result"
	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/sandbox/spec"
)

// Executor runs one program against one input. Implementations report
// program-level failures (compile errors, missing toolchains, remote
// outages) inside the Execution value; the error return is reserved for
// unusable requests and cancelled contexts.
type Executor interface {
	Execute(ctx context.Context, req spec.Request) (result.Execution, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req spec.Request) (result.Execution, error)

func (f ExecutorFunc) Execute(ctx context.Context, req spec.Request) (result.Execution, error) {
	return f(ctx, req)
}
