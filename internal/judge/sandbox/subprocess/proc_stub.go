//go:build !linux

package subprocess

import (
	"os"
	"os/exec"
	"syscall"
)

// sysProcAttr has no portable equivalent of Pdeathsig; other platforms run
// the child without extra process attributes.
func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

// startMemSampler is a no-op outside linux; peak memory reads as unknown.
func startMemSampler(int) (stop func() int64) {
	return func() int64 { return 0 }
}

func rusageMaxKB(*os.ProcessState) int64 {
	return 0
}
