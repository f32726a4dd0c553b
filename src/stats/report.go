package stats

import (
	"fmt"
	"os"
	"strings"
)

// ReportSuffix is appended to the input path to name the report file.
const ReportSuffix = ".txt"

func ReportPath(input string) string { return input + ReportSuffix }

// Render formats one line per sub-test: the ten bucket counts, the
// chi-square p-value, the pass ratio, a " * " marker on failure and the test
// name, followed by the failure count.
func Render(r *Report) string {
	var b strings.Builder
	b.Grow(len(r.Subtests)*100 + 40)

	for _, s := range r.Subtests {
		for _, c := range s.Deciles {
			fmt.Fprintf(&b, "%5d", c)
		}
		fmt.Fprintf(&b, "%12.5f%12.5f", s.ChiSquarePValue, s.PassRatio)
		if s.Passed {
			b.WriteString("   ")
		} else {
			b.WriteString(" * ")
		}
		b.WriteString(s.Name)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	fmt.Fprintf(&b, "Number of failed tests (*): %d", r.Failed)
	return b.String()
}

// WriteReport stores the report text at path, replacing any existing file.
func WriteReport(path string, r *Report) error {
	if err := os.WriteFile(path, []byte(r.Text), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
