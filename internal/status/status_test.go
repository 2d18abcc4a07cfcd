package status

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want string
		busy bool
	}{
		{"idle", Input{EnabledMessages: 3}, "💬 Chat Auto (3)", false},
		{"schedules running", Input{RunningSchedules: 2, EnabledMessages: 3}, "⏰ 2 schedule(s) running", false},
		{"sending wins", Input{Sending: true, Index: 1, Total: 4, RunningSchedules: 2}, "⟳ Sending 2/4", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.in)
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
			if got.Busy != tt.busy {
				t.Errorf("Busy = %v, want %v", got.Busy, tt.busy)
			}
			if got.Tooltip == "" {
				t.Error("missing tooltip")
			}
		})
	}
}
