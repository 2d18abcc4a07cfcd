// Package status derives the one-line status indicator.
package status

import "fmt"

// Input is everything the indicator depends on.
type Input struct {
	Sending          bool
	Index            int // zero-based index of the message being sent
	Total            int
	RunningSchedules int
	EnabledMessages  int
}

// Indicator is the rendered status line.
type Indicator struct {
	Text    string
	Tooltip string
	Busy    bool
}

// Render picks the indicator for in. A batch in flight wins over running
// schedules, which win over the idle message count.
func Render(in Input) Indicator {
	switch {
	case in.Sending:
		return Indicator{
			Text:    fmt.Sprintf("⟳ Sending %d/%d", in.Index+1, in.Total),
			Tooltip: "Sending messages, select to stop",
			Busy:    true,
		}
	case in.RunningSchedules > 0:
		return Indicator{
			Text:    fmt.Sprintf("⏰ %d schedule(s) running", in.RunningSchedules),
			Tooltip: "Schedules are running, select to open the panel",
		}
	default:
		return Indicator{
			Text:    fmt.Sprintf("💬 Chat Auto (%d)", in.EnabledMessages),
			Tooltip: "Open chat automation panel",
		}
	}
}
