package inspection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/inspectdiff/internal/imagediff"
	"github.com/zombor/inspectdiff/internal/reportdiff"
)

var (
	// ErrInvalidInput marks requests that can never succeed as sent
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks lookups of inspections, images or diffs that don't exist
	ErrNotFound = errors.New("not found")
)

// IsInvalidInput reports whether err was caused by bad caller input in any of
// the comparison packages
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, imagediff.ErrInvalidInput) ||
		errors.Is(err, reportdiff.ErrInvalidInput)
}

// ImageTypes lists the accepted inspection image types
var ImageTypes = []string{
	"inspections", "profiles", "documents", "others",
	"front", "back", "left", "right", "roof", "interior",
	"damage1", "damage2", "damage3",
}

// IdealReference is the fallback reference used when no type-specific one exists
const IdealReference = "ideal"

// Report comparison outcomes
const (
	OutcomeFirstInspection = "first_inspection"
	OutcomeNoChanges       = "no_changes"
	OutcomeChanged         = "changed"
)

// IDGenerator generates unique IDs for inspections and submissions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Recorder observes comparison outcomes
type Recorder interface {
	ImageCompared(label string, diffPercentage float64)
	ImageComparisonFailed()
	ReportCompared(outcome string)
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

type noopRecorder struct{}

func (noopRecorder) ImageCompared(string, float64) {}
func (noopRecorder) ImageComparisonFailed()        {}
func (noopRecorder) ReportCompared(string)         {}

// Service coordinates uploads, references, image comparison and report history
type Service struct {
	db          DB
	history     HistoryStore
	storage     Storage
	comparator  imagediff.Comparator
	idGenerator IDGenerator
	timeSource  TimeSource
	recorder    Recorder
	locks       *keyLocker
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, history HistoryStore, storage Storage, comparator imagediff.Comparator) *Service {
	return NewServiceWithDeps(db, history, storage, comparator, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, history HistoryStore, storage Storage, comparator imagediff.Comparator, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		history:     history,
		storage:     storage,
		comparator:  comparator,
		idGenerator: idGen,
		timeSource:  timeSrc,
		recorder:    noopRecorder{},
		locks:       newKeyLocker(),
	}
}

// SetRecorder installs r to observe comparison outcomes
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	s.recorder = r
}

// StartInspection opens a new inspection session for userID
func (s *Service) StartInspection(userID string) (*Inspection, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	inspection := &Inspection{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveInspection(inspection); err != nil {
		return nil, fmt.Errorf("saving inspection: %w", err)
	}
	return inspection, nil
}

// GetInspection retrieves an inspection by ID
func (s *Service) GetInspection(id string) (*Inspection, error) {
	inspection, err := s.db.GetInspection(id)
	if err != nil {
		return nil, fmt.Errorf("getting inspection: %w", err)
	}
	return inspection, nil
}

func validImageType(imageType string) bool {
	return slices.Contains(ImageTypes, imageType)
}

func imagePath(inspectionID, imageType, ext string) string {
	return fmt.Sprintf("inspections/%s/%s%s", inspectionID, imageType, ext)
}

func diffPath(inspectionID, imageType string) string {
	return fmt.Sprintf("inspections/%s/%s_diff.jpg", inspectionID, imageType)
}

func referencePath(imageType string) string {
	return "references/" + imageType
}

// extension picks the stored file extension for an upload's content type
func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic", "image/heif":
		return ".heic"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}

// loadReference returns the reference bytes for imageType, falling back to
// the ideal reference. A nil slice with a nil error means no reference exists.
func (s *Service) loadReference(imageType string) ([]byte, error) {
	for _, name := range []string{imageType, IdealReference} {
		data, err := s.storage.Get(referencePath(name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading reference %s: %w", name, err)
		}
	}
	return nil, nil
}

// UploadImage stores an inspection image and, when a reference exists,
// compares it against that reference
func (s *Service) UploadImage(ctx context.Context, inspectionID, imageType string, data []byte, contentType string) (*ImageRecord, error) {
	if !validImageType(imageType) {
		return nil, fmt.Errorf("%w: unknown image type %q", ErrInvalidInput, imageType)
	}
	if _, err := s.db.GetInspection(inspectionID); err != nil {
		return nil, fmt.Errorf("getting inspection: %w", err)
	}

	var (
		candidate image.Image
		reference image.Image
		refFound  bool
		refErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := imagediff.Decode(data, contentType)
		if err != nil {
			return fmt.Errorf("decoding image: %w", err)
		}
		candidate = img
		return nil
	})
	g.Go(func() error {
		refData, err := s.loadReference(imageType)
		if err != nil {
			refErr = err
			return nil
		}
		if refData == nil {
			return nil
		}
		refFound = true
		if gctx.Err() != nil {
			return nil
		}
		reference, refErr = imagediff.Decode(refData, "")
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := &ImageRecord{
		InspectionID: inspectionID,
		ImageType:    imageType,
		ContentType:  contentType,
		CreatedAt:    s.timeSource.Now(),
	}

	savedPath, err := s.storage.Save(imagePath(inspectionID, imageType, extension(contentType)), data)
	if err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}
	record.Path = savedPath

	switch {
	case refErr != nil:
		s.markFailed(record, refErr)
	case !refFound:
		record.Status = StatusUnavailable
	default:
		s.compareUpload(record, reference, candidate)
	}

	previous, err := s.db.GetImage(inspectionID, imageType)
	if err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("Could not load previous image record", "inspection_id", inspectionID, "image_type", imageType, "error", err)
	}

	if err := s.db.SaveImage(record); err != nil {
		// Clean up files if database save fails
		s.storage.Delete(savedPath)
		if record.DiffPath != "" {
			s.storage.Delete(record.DiffPath)
		}
		return nil, fmt.Errorf("saving image record: %w", err)
	}

	if previous != nil {
		s.removeReplaced(previous, record)
	}

	return record, nil
}

// removeReplaced deletes the files of a superseded record that the new
// record no longer points at
func (s *Service) removeReplaced(previous, current *ImageRecord) {
	stale := make([]string, 0, 2)
	if previous.Path != "" && previous.Path != current.Path {
		stale = append(stale, previous.Path)
	}
	if previous.DiffPath != "" && previous.DiffPath != current.DiffPath {
		stale = append(stale, previous.DiffPath)
	}
	for _, path := range stale {
		if err := s.storage.Delete(path); err != nil {
			slog.Warn("Could not delete replaced file",
				"inspection_id", current.InspectionID,
				"image_type", current.ImageType,
				"path", path,
				"error", err,
			)
		}
	}
}

func (s *Service) compareUpload(record *ImageRecord, reference, candidate image.Image) {
	res, err := imagediff.Run(s.comparator, reference, candidate)
	if err != nil {
		s.markFailed(record, err)
		return
	}

	saved, err := s.storage.Save(diffPath(record.InspectionID, record.ImageType), res.DiffImage)
	if err != nil {
		s.markFailed(record, fmt.Errorf("saving diff image: %w", err))
		return
	}

	record.DiffPath = saved
	record.Status = StatusCompared
	record.Comparison = &ComparisonSummary{
		Score:          res.Score,
		DiffPercentage: res.DiffPercentage,
		MSE:            res.MSE,
		Label:          res.Label,
	}
	s.recorder.ImageCompared(string(res.Label), res.DiffPercentage)
}

func (s *Service) markFailed(record *ImageRecord, err error) {
	slog.Error("Image comparison failed",
		"inspection_id", record.InspectionID,
		"image_type", record.ImageType,
		"error", err,
	)
	record.Status = StatusFailed
	record.Error = err.Error()
	s.recorder.ImageComparisonFailed()
}

// ListImages returns the images uploaded to an inspection
func (s *Service) ListImages(inspectionID string) ([]*ImageRecord, error) {
	if _, err := s.db.GetInspection(inspectionID); err != nil {
		return nil, fmt.Errorf("getting inspection: %w", err)
	}
	records, err := s.db.ListImages(inspectionID)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	return records, nil
}

// GetDiffImage returns the JPEG diff image of one uploaded image
func (s *Service) GetDiffImage(inspectionID, imageType string) ([]byte, error) {
	record, err := s.db.GetImage(inspectionID, imageType)
	if err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}
	if record.DiffPath == "" {
		return nil, fmt.Errorf("%w: no diff image for %s (%s)", ErrNotFound, imageType, record.Status)
	}

	data, err := s.storage.Get(record.DiffPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: diff image %s", ErrNotFound, record.DiffPath)
		}
		return nil, fmt.Errorf("getting diff image: %w", err)
	}
	return data, nil
}

// PutReference stores the reference image later uploads of imageType are
// compared against
func (s *Service) PutReference(imageType string, data []byte, contentType string) error {
	if imageType != IdealReference && !validImageType(imageType) {
		return fmt.Errorf("%w: unknown image type %q", ErrInvalidInput, imageType)
	}
	if _, err := imagediff.Decode(data, contentType); err != nil {
		return fmt.Errorf("decoding reference: %w", err)
	}
	if _, err := s.storage.Save(referencePath(imageType), data); err != nil {
		return fmt.Errorf("saving reference: %w", err)
	}
	return nil
}

// CompareImages compares two encoded images directly
func (s *Service) CompareImages(reference, candidate []byte) (*imagediff.Result, error) {
	res, err := imagediff.CompareBytes(s.comparator, reference, candidate)
	if err != nil {
		if !IsInvalidInput(err) {
			s.recorder.ImageComparisonFailed()
		}
		return nil, err
	}
	s.recorder.ImageCompared(string(res.Label), res.DiffPercentage)
	return res, nil
}

// CompareReports compares two findings sequences. An empty previous
// sequence means there is no history to compare with.
func (s *Service) CompareReports(previous, current []reportdiff.Finding) reportdiff.ComparisonReport {
	var (
		report  reportdiff.ComparisonReport
		outcome string
	)
	switch {
	case len(previous) == 0:
		report = reportdiff.FirstInspectionReport()
		outcome = OutcomeFirstInspection
	default:
		report = reportdiff.CompareReports(previous, current)
		outcome = OutcomeNoChanges
		if report.Changed {
			outcome = OutcomeChanged
		}
	}
	s.recorder.ReportCompared(outcome)
	return report
}

// Submit compares a submission's findings with the previous submission for
// the same user and subject, then replaces the stored findings
func (s *Service) Submit(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	key := ReportKey{
		UserID:    strings.TrimSpace(sub.UserID),
		SubjectID: strings.TrimSpace(sub.SubjectID),
	}
	if key.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if key.SubjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	previous, _, err := s.history.GetFindings(key)
	if err != nil {
		return nil, fmt.Errorf("getting previous findings: %w", err)
	}

	report := s.CompareReports(previous, sub.Findings)

	if err := s.history.PutFindings(key, sub.Findings); err != nil {
		return nil, fmt.Errorf("saving findings: %w", err)
	}

	id := s.idGenerator.Generate()
	slog.Info("Submission processed",
		"submission_id", id,
		"user_id", key.UserID,
		"subject_id", key.SubjectID,
		"photos", len(sub.PhotoIDs),
		"findings", len(sub.Findings),
	)

	return &SubmissionResult{
		Status:           "success",
		SubmissionID:     id,
		ComparisonReport: report.String(),
	}, nil
}
