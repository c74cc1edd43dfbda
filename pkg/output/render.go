// Package output renders audit reports as markdown, JSON, or a colorized
// terminal summary.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/pfrederiksen/privaudit/pkg/types"
)

const banner = "----------------------------------------------------------------"

// RenderMarkdown writes a report as a markdown document. The layout is
// stable: same report in, byte-identical document out.
func RenderMarkdown(w io.Writer, report *types.Report) error {
	var b strings.Builder

	b.WriteString(banner + "\n")
	b.WriteString("# Privaudit Findings\n\n")
	b.WriteString(fmt.Sprintf("Findings identified in account %s\n\n", report.AccountID))
	b.WriteString(fmt.Sprintf("Date and Time: %s\n\n", report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")))
	b.WriteString(report.Source + "\n")
	b.WriteString(banner + "\n\n")

	if len(report.Findings) == 0 {
		b.WriteString("None found.\n")
	}

	for _, finding := range report.Findings {
		b.WriteString(fmt.Sprintf("## %s\n\n", finding.Title))
		b.WriteString(fmt.Sprintf("### Severity\n\n%s\n\n", finding.Severity))
		b.WriteString(fmt.Sprintf("### Impact\n\n%s\n\n", finding.Impact))
		b.WriteString(fmt.Sprintf("### Description\n\n%s\n\n", finding.Description))
		b.WriteString(fmt.Sprintf("### Recommendation\n\n%s\n\n", finding.Recommendation))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderJSON writes a report as indented JSON.
func RenderJSON(w io.Writer, report *types.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")
	return encoder.Encode(report)
}

// ParseReport decodes a JSON report produced by RenderJSON.
func ParseReport(data []byte) (*types.Report, error) {
	var report types.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// RenderSummary writes a short colorized overview for terminals.
func RenderSummary(w io.Writer, report *types.Report) error {
	bold := color.New(color.Bold)

	if _, err := bold.Fprintf(w, "Account %s: %d finding(s)\n", report.AccountID, len(report.Findings)); err != nil {
		return err
	}

	if len(report.Findings) == 0 {
		_, err := fmt.Fprintln(w, "None found.")
		return err
	}

	for _, finding := range report.Findings {
		if _, err := fmt.Fprintf(w, "  [%s] %s\n", severityColor(finding.Severity), finding.Title); err != nil {
			return err
		}
	}

	return nil
}

func severityColor(severity types.Severity) string {
	switch severity {
	case types.SeverityHigh:
		return color.RedString(string(severity))
	case types.SeverityMedium:
		return color.YellowString(string(severity))
	case types.SeverityLow:
		return color.GreenString(string(severity))
	default:
		return string(severity)
	}
}
