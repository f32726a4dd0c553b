package pipeline

import (
	"fmt"
	"time"
)

// FormatDuration formats d as HH:MM:SS.mmm.
func FormatDuration(d time.Duration) string {
	msec := d.Milliseconds()
	hours := msec / 3_600_000
	msec %= 3_600_000

	minutes := msec / 60_000
	msec %= 60_000

	sec := msec / 1_000
	msec %= 1_000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, sec, msec)
}

func (p Progress) String() string {
	return fmt.Sprintf("Blocks: %d/%d (%.0f%%)\nAvr time to block: %s\n        Time left: %s\n      Time passed: %s",
		p.CompletedBlocks, p.TotalBlocks, p.Fraction()*100,
		FormatDuration(time.Duration(p.AvgBlockMillis)*time.Millisecond),
		FormatDuration(p.TimeLeft()),
		FormatDuration(p.Elapsed),
	)
}
