//go:build windows

package bridge

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the tool in a new process group.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags = syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessGroup terminates the process. For batch tools this is the cmd.exe
// wrapper; the group flag makes the console children go with it.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
