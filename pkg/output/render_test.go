package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/privaudit/pkg/types"
)

func sampleReport() *types.Report {
	return &types.Report{
		AccountID:   "123456789012",
		GeneratedAt: time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC),
		Findings: []types.Finding{{
			Title:          "IAM Principal Can Escalate Privileges",
			Severity:       types.SeverityHigh,
			Impact:         "Full account compromise.",
			Description:    "* user/alice can escalate privileges.",
			Recommendation: "Reduce permissions.",
		}},
		Source: "Findings identified using privaudit " + types.Version +
			" (https://github.com/pfrederiksen/privaudit)",
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, sampleReport()))
	got := buf.String()

	banner := strings.Repeat("-", 64)
	assert.True(t, strings.HasPrefix(got, banner+"\n"))
	assert.Contains(t, got, "# Privaudit Findings")
	assert.Contains(t, got, "Findings identified in account 123456789012")
	assert.Contains(t, got, "Date and Time: 2026-08-15T09:30:00Z")
	assert.Contains(t, got, "## IAM Principal Can Escalate Privileges")
	assert.Contains(t, got, "### Severity\n\nHigh")
	assert.Contains(t, got, "### Impact\n\nFull account compromise.")
	assert.Contains(t, got, "### Description\n\n* user/alice can escalate privileges.")
	assert.Contains(t, got, "### Recommendation\n\nReduce permissions.")
	assert.NotContains(t, got, "None found.")
}

func TestRenderMarkdownEmpty(t *testing.T) {
	report := sampleReport()
	report.Findings = nil

	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, report))
	assert.Contains(t, buf.String(), "None found.\n")
}

func TestRenderMarkdownStable(t *testing.T) {
	report := sampleReport()

	var first bytes.Buffer
	require.NoError(t, RenderMarkdown(&first, report))
	for i := 0; i < 3; i++ {
		var again bytes.Buffer
		require.NoError(t, RenderMarkdown(&again, report))
		assert.Equal(t, first.String(), again.String())
	}
}

func TestRenderJSONRoundTrip(t *testing.T) {
	report := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, report))

	// 4-space indentation.
	assert.Contains(t, buf.String(), "\n    \"accountId\"")

	parsed, err := ParseReport(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, report.AccountID, parsed.AccountID)
	assert.True(t, report.GeneratedAt.Equal(parsed.GeneratedAt))
	assert.Equal(t, report.Findings, parsed.Findings)
	assert.Equal(t, report.Source, parsed.Source)
}

func TestParseReportInvalid(t *testing.T) {
	_, err := ParseReport([]byte("not json"))
	assert.Error(t, err)
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, sampleReport()))
	got := buf.String()

	assert.Contains(t, got, "Account 123456789012: 1 finding(s)")
	assert.Contains(t, got, "IAM Principal Can Escalate Privileges")
}

func TestRenderSummaryEmpty(t *testing.T) {
	report := sampleReport()
	report.Findings = nil

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, report))
	assert.Contains(t, buf.String(), "None found.")
}
