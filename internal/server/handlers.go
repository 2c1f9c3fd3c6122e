package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/inspectdiff/internal/inspection"
	"github.com/zombor/inspectdiff/internal/reportdiff"
)

// maxUploadSize bounds multipart bodies; high-resolution phone photos fit comfortably
const maxUploadSize = int64(50 << 20) // 50MB

const tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError writes {"error": message}
func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case inspection.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, inspection.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs unexpected failures and writes the mapped error response
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		slog.Error("Request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeJSONError(w, "Internal server error", code)
	case http.StatusRequestEntityTooLarge:
		writeJSONError(w, tooLargeMessage, code)
	default:
		writeJSONError(w, err.Error(), code)
	}
}

// formFile reads one uploaded file and works out its content type
func formFile(r *http.Request, field string) ([]byte, string, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", fmt.Errorf("%w: no %s was uploaded", inspection.ErrInvalidInput, field)
		}
		return nil, "", fmt.Errorf("%w: reading %s: %w", inspection.ErrInvalidInput, field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", field, err)
	}

	contentType := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromName(header.Filename)
	}
	return data, strings.ToLower(strings.TrimSpace(contentType)), nil
}

func contentTypeFromName(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// parseMultipart limits and parses a multipart body
func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: error parsing form: %w", inspection.ErrInvalidInput, err)
	}
	return nil
}

// decodeJSON decodes a limited JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %w", inspection.ErrInvalidInput, err)
	}
	return nil
}

// parseFindingList accepts an absent list as empty
func parseFindingList(name string, raw json.RawMessage) ([]reportdiff.Finding, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	findings, err := reportdiff.ParseFindings(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return findings, nil
}

// handleRoot reports that the backend is up
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "backend running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCompareImages compares two uploaded images directly
func (s *Server) handleCompareImages(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		writeError(w, r, err)
		return
	}

	reference, _, err := formFile(r, "old_image")
	if err != nil {
		writeError(w, r, err)
		return
	}
	candidate, _, err := formFile(r, "new_image")
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.service.CompareImages(reference, candidate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type compareReportsRequest struct {
	Previous json.RawMessage `json:"previous"`
	Current  json.RawMessage `json:"current"`
}

// handleCompareReports diffs two findings lists without touching history
func (s *Server) handleCompareReports(w http.ResponseWriter, r *http.Request) {
	var req compareReportsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	previous, err := parseFindingList("previous", req.Previous)
	if err != nil {
		writeError(w, r, err)
		return
	}
	current, err := parseFindingList("current", req.Current)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := s.service.CompareReports(previous, current)
	writeJSON(w, http.StatusOK, map[string]any{
		"comparison_report": report.String(),
		"changed":           report.Changed,
	})
}

type submissionRequest struct {
	UserID          string          `json:"userId"`
	CarModel        string          `json:"carModel"`
	PhotoIDs        []string        `json:"photoIds"`
	AnalysisResults json.RawMessage `json:"analysisResults"`
}

// handleSubmit records an inspection submission and returns its comparison report
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	findings, err := parseFindingList("analysisResults", req.AnalysisResults)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.service.Submit(r.Context(), inspection.Submission{
		UserID:    req.UserID,
		SubjectID: req.CarModel,
		PhotoIDs:  req.PhotoIDs,
		Findings:  findings,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleStartInspection opens an inspection from a JSON or form user_id
func (s *Server) handleStartInspection(w http.ResponseWriter, r *http.Request) {
	var userID string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		userID = req.UserID
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		userID = r.FormValue("user_id")
	}

	insp, err := s.service.StartInspection(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, insp)
}

// handleUploadImage stores an inspection image and compares it with its reference
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		writeError(w, r, err)
		return
	}

	data, contentType, err := formFile(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}

	record, err := s.service.UploadImage(r.Context(), r.PathValue("id"), r.FormValue("image_type"), data, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleListImages returns the images of one inspection
func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListImages(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleGetDiffImage serves the JPEG diff image of one uploaded image
func (s *Server) handleGetDiffImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetDiffImage(r.PathValue("id"), r.PathValue("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// handlePutReference replaces the reference image of one type
func (s *Server) handlePutReference(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r); err != nil {
		writeError(w, r, err)
		return
	}

	data, contentType, err := formFile(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.service.PutReference(r.PathValue("type"), data, contentType); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
