package app

import (
	"fmt"
	"strings"

	"kestrel/console"
	"kestrel/hal"
	"kestrel/kernel"
)

// panicHandler reports a kernel panic on the host log and, when there is a
// framebuffer, as a full-screen report.
func panicHandler(h hal.HAL, con *console.Console) func(kernel.PanicInfo) {
	return func(info kernel.PanicInfo) {
		lines := panicReport(info)

		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}

		if con == nil {
			c, err := console.New(h.Display())
			if err != nil {
				return
			}
			con = c
		}
		con.Clear()
		for _, line := range lines {
			con.WriteLineString(line)
		}
		_ = con.Flush()
	}
}

func panicReport(info kernel.PanicInfo) []string {
	lines := []string{"Kestrel Panic:"}
	if info.Err != nil {
		lines = append(lines, fmt.Sprintf("panic: %s", info.Err.Error()))
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, strings.TrimLeft(line, "\t"))
	}
	return lines
}
