package inspection

import (
	"time"

	"github.com/zombor/inspectdiff/internal/imagediff"
	"github.com/zombor/inspectdiff/internal/reportdiff"
)

// Comparison statuses recorded on an uploaded image
const (
	StatusCompared    = "compared"
	StatusUnavailable = "no comparison available"
	StatusFailed      = "comparison failed"
)

// Inspection groups the images captured in one inspection session
type Inspection struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ComparisonSummary is what is kept of an image comparison; the diff image
// itself lives in storage
type ComparisonSummary struct {
	Score          float64           `json:"score"`
	DiffPercentage float64           `json:"diff_percentage"`
	MSE            float64           `json:"mse"`
	Label          imagediff.Verdict `json:"label"`
}

// ImageRecord is an uploaded inspection image and its comparison outcome
type ImageRecord struct {
	InspectionID string             `json:"inspection_id"`
	ImageType    string             `json:"image_type"`
	Path         string             `json:"path"`
	ContentType  string             `json:"content_type"`
	DiffPath     string             `json:"diff_path,omitempty"`
	Status       string             `json:"status"`
	Comparison   *ComparisonSummary `json:"comparison,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Submission is a finished inspection report for a user's subject
type Submission struct {
	UserID    string
	SubjectID string
	PhotoIDs  []string
	Findings  []reportdiff.Finding
}

// SubmissionResult is returned for every accepted submission
type SubmissionResult struct {
	Status           string `json:"status"`
	SubmissionID     string `json:"submission_id"`
	ComparisonReport string `json:"comparison_report"`
}
