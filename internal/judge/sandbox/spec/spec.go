// Package spec defines the execution request contract shared by all executors.
package spec

import (
	"time"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/judge/language"
)

// DefaultTimeLimitMs is applied when a request carries no explicit budget.
const DefaultTimeLimitMs = 3000

// Request describes one program execution against one input.
type Request struct {
	Language    language.Language
	Source      string
	Stdin       string
	TimeLimitMs int64 // wall-clock budget, 0 means DefaultTimeLimitMs
}

// Timeout returns the effective wall-clock budget.
func (r Request) Timeout() time.Duration {
	ms := r.TimeLimitMs
	if ms <= 0 {
		ms = DefaultTimeLimitMs
	}
	return time.Duration(ms) * time.Millisecond
}
