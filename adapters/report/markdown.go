package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"pseudobulk/domain/de"
	"pseudobulk/domain/expr"
)

// RunReport carries everything the run summary document needs.
type RunReport struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Pseudobulk   *expr.PseudobulkMatrix
	Summaries    []de.ContrastSummary
	Failed       []string
	Alpha        float64
	LFCThreshold float64
}

// WriteRunReport writes report.md and a rendered report.html alongside it.
func WriteRunReport(dir string, rep RunReport) (string, string, error) {
	md := renderMarkdown(rep)

	mdPath := filepath.Join(dir, "report.md")
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return "", "", fmt.Errorf("writing report.md: %w", err)
	}

	htmlPath := filepath.Join(dir, "report.html")
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(md))
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage, Title: "Pseudobulk DE Report"})
	rendered := markdown.Render(doc, r)
	if err := os.WriteFile(htmlPath, rendered, 0o644); err != nil {
		return "", "", fmt.Errorf("writing report.html: %w", err)
	}
	return mdPath, htmlPath, nil
}

func renderMarkdown(rep RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Pseudobulk DE Report\n\n")
	fmt.Fprintf(&b, "- Run: %s\n", rep.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", rep.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", rep.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Alpha: %g, LFC threshold: %g\n\n", rep.Alpha, rep.LFCThreshold)

	if rep.Pseudobulk != nil {
		fmt.Fprintf(&b, "## Pseudobulk matrix\n\n")
		fmt.Fprintf(&b, "%d genes across %d sample.cluster columns.\n\n",
			len(rep.Pseudobulk.Genes), len(rep.Pseudobulk.Columns))
	}

	fmt.Fprintf(&b, "## Contrast summaries\n\n")
	if len(rep.Summaries) == 0 {
		fmt.Fprintf(&b, "No contrasts were tested.\n\n")
	} else {
		fmt.Fprintf(&b, "| Contrast | Up | Down | Nonzero/Total | Outliers | Low counts |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
		for _, s := range rep.Summaries {
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %d | %d |\n",
				s.Contrast, s.Up, s.Down, s.NonZeroVsTotal(), s.Outliers, s.LowCounts)
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(rep.Failed) > 0 {
		fmt.Fprintf(&b, "## Failed contrasts\n\n")
		for _, name := range rep.Failed {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		fmt.Fprintf(&b, "\n")
	}

	return b.String()
}
