//go:build windows

package runner

import "os/exec"

func setupProcessGroup(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error { return killProcess(cmd) }
