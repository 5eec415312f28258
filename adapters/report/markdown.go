package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/internal/errors"
	"github.com/thibautjombart/epichange/ports"
)

// MarkdownReporter renders finished detections as a markdown summary, or as
// HTML when asked. It implements ports.ResultSink.
type MarkdownReporter struct {
	w    io.Writer
	html bool
}

var _ ports.ResultSink = (*MarkdownReporter)(nil)

// NewMarkdownReporter writes markdown to w.
func NewMarkdownReporter(w io.Writer) *MarkdownReporter {
	return &MarkdownReporter{w: w}
}

// NewHTMLReporter writes rendered HTML to w.
func NewHTMLReporter(w io.Writer) *MarkdownReporter {
	return &MarkdownReporter{w: w, html: true}
}

// Write renders one detection to the underlying writer.
func (r *MarkdownReporter) Write(ctx context.Context, det *detect.Detection) error {
	out := Render(det)
	if r.html {
		out = RenderHTML(det)
	}
	if _, err := r.w.Write(out); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	return nil
}

// Render produces the markdown summary for one detection: headline verdict,
// the window ranking, the model comparison and the recent flagged days.
func Render(det *detect.Detection) []byte {
	var b strings.Builder
	best := det.Best

	title := "Trend change report"
	if best.Group != "" {
		title += " — " + best.Group
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	fmt.Fprintf(&b, "Selected model **%s** with a held-out window of **%d** day(s) "+
		"(alpha %.2g, %s scoring).\n\n", best.BestModel, best.K, best.Alpha, best.Method)
	fmt.Fprintf(&b, "%d of %d days fall outside the predictive interval "+
		"(one-sided binomial p = %.4g).\n\n", best.NOutliers, len(best.Rows), best.PValue)

	if summary := countSummary(best); summary != "" {
		fmt.Fprintf(&b, "%s\n\n", summary)
	}

	b.WriteString("## Window ranking\n\n")
	b.WriteString("| k | history fit | recent flags | score |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, ws := range det.Ranking {
		fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", ws.K, ws.Score1, ws.Score2, ws.Score)
	}
	b.WriteString("\n")

	b.WriteString("## Model comparison\n\n")
	b.WriteString("| model | score |\n")
	b.WriteString("|---|---|\n")
	for _, entry := range best.Comparison {
		fmt.Fprintf(&b, "| %s | %.4g |\n", entry.Model, entry.Score)
	}
	b.WriteString("\n")

	flagged := flaggedTestRows(best)
	if len(flagged) > 0 {
		b.WriteString("## Flagged recent days\n\n")
		b.WriteString("| day | count | interval | classification |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, row := range flagged {
			fmt.Fprintf(&b, "| %d | %d | [%.0f, %.0f] | %s |\n",
				row.Day, row.Count, row.Lower, row.Upper, row.Classification)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No recent days were flagged as departing from the trend.\n")
	}

	return []byte(b.String())
}

// RenderHTML renders the markdown summary to a standalone HTML fragment.
func RenderHTML(det *detect.Detection) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML(Render(det), p, renderer)
}

// countSummary gives the mean/median of the observed counts for context.
func countSummary(res *detect.Result) string {
	counts := make([]float64, len(res.Rows))
	for i, row := range res.Rows {
		counts[i] = float64(row.Count)
	}
	mean, err1 := stats.Mean(counts)
	median, err2 := stats.Median(counts)
	if err1 != nil || err2 != nil {
		return ""
	}
	return fmt.Sprintf("Observed counts: mean %.1f, median %.1f over %d days.", mean, median, len(counts))
}

func flaggedTestRows(res *detect.Result) []detect.DiagnosticRow {
	var out []detect.DiagnosticRow
	for _, row := range res.Rows {
		if row.Segment == detect.SegmentTest && row.Outlier {
			out = append(out, row)
		}
	}
	return out
}
