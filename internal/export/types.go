// Package export renders an activity plan report as HTML or PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request contains parameters for an export operation
type Request struct {
	ActivityID int64
	Format     Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Report is the fully resolved data rendered into the template.
type Report struct {
	ActivityName string
	Description  string
	OwnerName    string
	StartDate    time.Time
	EndDate      time.Time
	Scale        string
	GeneratedAt  time.Time
	Topics       []ReportTopic
}

// ReportTopic groups the subtask rows of one topic.
type ReportTopic struct {
	Title    string
	SubTasks []ReportSubTask
}

// ReportSubTask is one row of the report table. Status is the effective
// status at generation time.
type ReportSubTask struct {
	Title           string
	StartDate       time.Time
	EndDate         time.Time
	Status          string
	ProgressPercent int
	AssigneeName    string
}
