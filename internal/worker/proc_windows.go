//go:build windows

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcess starts the worker in a new process group. Windows has no
// group kill from here, so cancellation falls back to exec's default of
// killing the worker alone.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// exitSignal always reports no signal; Windows processes only have exit codes.
func exitSignal(*os.ProcessState) string {
	return ""
}
