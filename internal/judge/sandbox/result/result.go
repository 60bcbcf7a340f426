// Package result defines the data every executor reports back, including
// the failure modes that are carried as data rather than errors.
package result

// FailureKind classifies executions that never ran the program to a normal
// completion. Failures travel inside the result so the orchestrator can
// still produce a user-facing verdict.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureCompile   FailureKind = "compile"
	FailureToolchain FailureKind = "toolchain"
	FailureRemote    FailureKind = "remote"
)

// Execution captures everything observed from one program run.
type Execution struct {
	Stdout       string
	Stderr       string
	ExitCode     int
	TimedOut     bool
	RuntimeMs    int64
	PeakMemoryKB int64 // 0 means not sampled
	Failure      FailureKind
}

// Failed reports whether the program never completed normally.
func (e Execution) Failed() bool {
	return e.Failure != FailureNone
}

// CompileFailure builds the result for a rejected compile stage. The
// compiler diagnostics land in Stderr so they reach the user verbatim.
func CompileFailure(diagnostics string, elapsedMs int64) Execution {
	return Execution{
		Stderr:    diagnostics,
		ExitCode:  -1,
		RuntimeMs: elapsedMs,
		Failure:   FailureCompile,
	}
}

// ToolchainFailure builds the result for a missing local toolchain binary.
func ToolchainFailure(diagnostic string) Execution {
	return Execution{
		Stderr:   diagnostic,
		ExitCode: -1,
		Failure:  FailureToolchain,
	}
}

// RemoteFailure builds the result for an unreachable or misbehaving remote
// execution service.
func RemoteFailure(diagnostic string) Execution {
	return Execution{
		Stderr:   diagnostic,
		ExitCode: -1,
		Failure:  FailureRemote,
	}
}
