package common

import (
	"runtime"

	"github.com/devlights/gomy/output"
)

// DumpGoroutineStacks renders every goroutine's stack trace to a string.
// Engine.Diagnostics calls this when something looks stuck, so a human has
// something to paste into a bug report.
func DumpGoroutineStacks() string {
	buf := make([]byte, 1<<16)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// PrintGoroutineStacks writes the current stack dump to stdout via gomy's
// labelled writer, for dropping into a terminal while chasing a hang live.
func PrintGoroutineStacks() {
	output.Stdoutl("=== stack-all ===", DumpGoroutineStacks())
}
