package reportdiff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	defaultSeverity    = "none"
	defaultDescription = "No description provided"

	previousLabel = "Previous Report"
	recentLabel   = "Recent Report"
	diffContext   = 3

	noChangesMessage       = "No significant changes detected between the reports."
	firstInspectionMessage = "First inspection recorded. No prior history to compare."
)

// reportHeader opens every comparison report that has a previous inspection
var reportHeader = "COMPARISON REPORT\n" + strings.Repeat("=", 60) + "\n\n"

// partNames labels findings by position when they carry no part identifier
var partNames = []string{
	"Front View",
	"Right Side",
	"Rear View",
	"Left Side",
	"Front Windshield",
	"Interior Front",
	"Interior Back",
	"Dashboard",
	"Trunk",
}

// ComparisonReport is the textual result of comparing two inspections
type ComparisonReport struct {
	Header  string `json:"header"`
	Body    string `json:"body"`
	Changed bool   `json:"changed"` // the findings differ from the previous inspection
}

// String returns the report as a single text
func (r ComparisonReport) String() string {
	return r.Header + r.Body
}

// PartLabel resolves the human readable part name for the finding at index i
func PartLabel(i int, f Finding) string {
	if part := strings.TrimSpace(f.Part); part != "" {
		return part
	}
	if i >= 0 && i < len(partNames) {
		return partNames[i]
	}
	return fmt.Sprintf("Part %d", i+1)
}

// Render produces the canonical text of a findings sequence
func Render(findings []Finding) string {
	var b strings.Builder
	for i, f := range findings {
		severity := f.Severity
		if severity == "" {
			severity = defaultSeverity
		}
		description := f.Description
		if description == "" {
			description = defaultDescription
		}

		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n", PartLabel(i, f))
		fmt.Fprintf(&b, "Severity: %s\n", severity)
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	return b.String()
}

// Diff returns a unified diff of two canonical texts, or "" when they match
func Diff(previous, current string) string {
	text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(previous),
		B:        splitLines(current),
		FromFile: previousLabel,
		ToFile:   recentLabel,
		Context:  diffContext,
	}) // writes to a bytes.Buffer and cannot fail
	return strings.TrimSuffix(text, "\n")
}

// CompareReports renders both finding sets and reports what changed
func CompareReports(previous, current []Finding) ComparisonReport {
	diff := Diff(Render(previous), Render(current))
	if diff == "" {
		return ComparisonReport{Header: reportHeader, Body: noChangesMessage}
	}
	return ComparisonReport{Header: reportHeader, Body: diff, Changed: true}
}

// FirstInspectionReport is used when there is no previous inspection to compare against
func FirstInspectionReport() ComparisonReport {
	return ComparisonReport{Body: firstInspectionMessage}
}

// splitLines splits text into newline terminated lines without adding an
// empty trailing line
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}
