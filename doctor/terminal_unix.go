//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode left behind by a hotkey backend.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
