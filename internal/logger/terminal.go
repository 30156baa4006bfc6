package logger

import "os"

// isTerminal reports whether f is attached to an interactive terminal.
// A character-device check covers every platform we run on without
// per-OS ioctls; pipes and regular files (the usual non-interactive
// outputs for a FIX engine under systemd or in a container) are not
// character devices.
func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
