// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// maxValueRunes bounds a rendered field value
	maxValueRunes = 120
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintJob outputs a job summary followed by its proposed changes.
func (p *Printer) PrintJob(job *types.UpdateJob) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:       %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Resource:  %s\n", job.ResourceSlug))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Trigger:   %s (%s)\n", job.Trigger, job.Policy))
	if job.AnalysisConfidence != nil {
		sb.WriteString(fmt.Sprintf("Analysis:  %.2f confidence", *job.AnalysisConfidence))
		if job.AnalysisModel != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", job.AnalysisModel))
		}
		sb.WriteString("\n")
	}
	if job.AnalysisSummary != "" {
		sb.WriteString(fmt.Sprintf("Summary:   %s\n", job.AnalysisSummary))
	}
	if job.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Error:     %s\n", job.ErrorMessage))
	}
	if len(job.SourceErrors) > 0 {
		sb.WriteString("\nSource errors:\n")
		for _, e := range job.SourceErrors {
			sb.WriteString(fmt.Sprintf("  ⚠ %s: %s\n", e.Source, e.Message))
		}
	}
	if len(job.AppliedFields) > 0 {
		sb.WriteString(fmt.Sprintf("\nApplied:   %s\n", strings.Join(job.AppliedFields, ", ")))
	}
	if job.ReviewedBy != nil {
		sb.WriteString(fmt.Sprintf("Reviewer:  %s\n", *job.ReviewedBy))
		if job.ReviewNotes != "" {
			sb.WriteString(fmt.Sprintf("Notes:     %s\n", job.ReviewNotes))
		}
	}

	p.printBox("UPDATE JOB", strings.TrimSuffix(sb.String(), "\n"))
	p.PrintProposedChanges(job.ProposedChanges)
}

// PrintProposedChanges outputs each proposed change with its old and new value.
func (p *Printer) PrintProposedChanges(changes []types.ProposedChange) {
	if len(changes) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d proposed changes:\n\n", len(changes)))
	for i, c := range changes {
		sb.WriteString(fmt.Sprintf("• %s  %.2f", c.Field, c.Confidence))
		if c.IsBreaking {
			sb.WriteString("  ⚠ breaking")
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  - %s\n", FormatValue(c.OldValue)))
		sb.WriteString(fmt.Sprintf("  + %s\n", FormatValue(c.NewValue)))
		if i < len(changes)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("PROPOSED CHANGES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatch outputs the per-resource outcome of a batch and its totals.
func (p *Printer) PrintBatch(result *pipeline.BatchResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	for _, r := range result.Results {
		switch {
		case r.Skipped:
			sb.WriteString(fmt.Sprintf("○ %-28s skipped\n", r.Slug))
		case r.Error != "":
			sb.WriteString(fmt.Sprintf("✗ %-28s %s\n", r.Slug, r.Error))
		default:
			sb.WriteString(fmt.Sprintf("✓ %-28s %s\n", r.Slug, r.Status))
		}
	}
	sb.WriteString(fmt.Sprintf("\n%d ready for review, %d applied, %d failed, %d skipped in %s",
		result.Count(types.StatusReadyForReview),
		result.Count(types.StatusApplied),
		result.Count(types.StatusFailed),
		result.Skipped(),
		result.Duration.Round(time.Millisecond)))

	p.printBox("REFRESH RESULTS", sb.String())
}

// PrintChangelog outputs the most recent changelog entries.
func (p *Printer) PrintChangelog(entries []types.ChangelogEntry) {
	if len(entries) == 0 {
		p.printBox("CHANGELOG", "No changes applied yet.")
		return
	}

	var sb strings.Builder
	count := min(len(entries), maxItemsToShow)
	for i := 0; i < count; i++ {
		e := entries[i]
		sb.WriteString(fmt.Sprintf("%s  %s", e.CreatedAt.Format("2006-01-02 15:04"), e.Source))
		if e.Actor != "" {
			sb.WriteString(fmt.Sprintf(" by %s", e.Actor))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  %s\n", e.Summary))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(entries) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more entries\n", len(entries)-maxItemsToShow))
	}

	p.printBox("CHANGELOG", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProgress outputs one progress line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event pipeline.ProgressEvent) {
	fmt.Fprintf(p.out, "[%s] %-18s %s\n", event.Slug, event.Status, event.Message)
}

// FormatValue renders a field value on one line, truncating long text.
func FormatValue(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return "(none)"
	case string:
		s = t
	case []string:
		s = strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		s = strings.Join(parts, ", ")
	default:
		s = fmt.Sprint(t)
	}
	return truncate(types.NormalizeText(s), maxValueRunes)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
