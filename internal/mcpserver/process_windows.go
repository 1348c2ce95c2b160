//go:build windows

package mcpserver

import (
	"os"
	"os/exec"
)

func configureCommand(cmd *exec.Cmd) {}

// Windows has no graceful signal for console-less children.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func killProcess(p *os.Process) error {
	return p.Kill()
}
