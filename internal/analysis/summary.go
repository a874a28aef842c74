package analysis

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	topN      = 5
	ruleWidth = 60
)

// Summary writes the summary report. Styling follows the color profile of w,
// so plain writers get plain text.
func (r *Results) Summary(w io.Writer) error {
	if r.Stats == nil {
		_, err := fmt.Fprintln(w, "No stats data available")
		return err
	}

	re := lipgloss.NewRenderer(w)
	title := re.NewStyle().Bold(true)
	section := re.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	bad := re.NewStyle().Foreground(lipgloss.Color("196"))
	ok := re.NewStyle().Foreground(lipgloss.Color("42"))
	p := message.NewPrinter(language.English)

	t := r.Totals()
	rateStyle := ok
	if t.Failures > 0 {
		rateStyle = bad
	}

	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)
	b.WriteString("\n" + rule + "\n")
	b.WriteString(title.Render("LOAD TEST SUMMARY REPORT") + "\n")
	b.WriteString(rule + "\n")

	p.Fprintf(&b, "Total Requests: %d\n", t.Requests)
	p.Fprintf(&b, "Total Failures: %d\n", t.Failures)
	fmt.Fprintf(&b, "Failure Rate: %s\n", rateStyle.Render(fmt.Sprintf("%.2f%%", t.FailureRate)))

	b.WriteString("\n" + section.Render("Response Time Statistics:") + "\n")
	fmt.Fprintf(&b, "Average: %.2fms\n", t.AvgResponse)
	fmt.Fprintf(&b, "50th Percentile: %.2fms\n", t.P50)
	fmt.Fprintf(&b, "95th Percentile: %.2fms\n", t.P95)
	fmt.Fprintf(&b, "Maximum: %.2fms\n", t.MaxResponse)

	b.WriteString("\n" + section.Render("Slowest Endpoints:") + "\n")
	for _, e := range r.Slowest(topN) {
		fmt.Fprintf(&b, "  %s: %.2fms\n", e.Name, e.AvgResponse)
	}

	if top := r.TopFailures(topN); len(top) > 0 {
		b.WriteString("\n" + section.Render("Top Failure Types:") + "\n")
		for _, f := range top {
			fmt.Fprintf(&b, "  %s: %s occurrences\n", bad.Render(f.Error), p.Sprintf("%d", f.Occurrences))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
