// Package handlers implements the HTTP endpoints of serve mode.
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/patient-records/combine"
	"github.com/giygas/patient-records/export"
	"github.com/giygas/patient-records/flatten"
	"github.com/giygas/patient-records/interfaces"
	"github.com/giygas/patient-records/logging"
	"github.com/giygas/patient-records/metrics"
	"github.com/giygas/patient-records/records"
	"github.com/giygas/patient-records/scheduler"
	"github.com/giygas/patient-records/tabulate"
	"github.com/giygas/patient-records/validation"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// HTTPHandlerImpl serves the combined dataset and the record intake API.
type HTTPHandlerImpl struct {
	dataStore  interfaces.DataStore
	records    interfaces.RecordStore
	scheduler  interfaces.Scheduler
	health     interfaces.HealthChecker
	layout     tabulate.Layout
	outputName string
}

// NewHTTPHandler wires the handler to its collaborators.
func NewHTTPHandler(dataStore interfaces.DataStore, recordStore interfaces.RecordStore,
	sched interfaces.Scheduler, health interfaces.HealthChecker, outputName string) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		dataStore:  dataStore,
		records:    recordStore,
		scheduler:  sched,
		health:     health,
		layout:     tabulate.DefaultLayout(),
		outputName: outputName,
	}
}

// SummaryResponse is the body of GET /summary.
type SummaryResponse struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
	ExitCode   int              `json:"exit_code"`
	CSVPath    string           `json:"csv_path"`
	XLSXPath   string           `json:"xlsx_path,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Summary    tabulate.Summary `json:"summary"`
}

func newSummaryResponse(res *combine.Result) SummaryResponse {
	return SummaryResponse{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
		ExitCode:   res.ExitCode(),
		CSVPath:    res.CSVPath,
		XLSXPath:   res.XLSXPath,
		Warnings:   res.Warnings,
		Summary:    res.Summary,
	}
}

// currentResult answers 503 when no dataset has been combined yet.
func (h *HTTPHandlerImpl) currentResult(w http.ResponseWriter) *combine.Result {
	res := h.dataStore.GetResult()
	if res == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "No combined dataset available yet")
	}
	return res
}

// ServeDatasetCSV returns the latest dataset as CSV.
func (h *HTTPHandlerImpl) ServeDatasetCSV(w http.ResponseWriter, r *http.Request) {
	h.serveDataset(w, r, ".csv", csvContentType, export.WriteCSV)
}

// ServeDatasetXLSX returns the latest dataset as a spreadsheet.
func (h *HTTPHandlerImpl) ServeDatasetXLSX(w http.ResponseWriter, r *http.Request) {
	h.serveDataset(w, r, ".xlsx", xlsxContentType, export.WriteXLSX)
}

func (h *HTTPHandlerImpl) serveDataset(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(io.Writer, *tabulate.Dataset) error) {
	res := h.currentResult(w)
	if res == nil {
		return
	}

	etag := fmt.Sprintf("%q", res.RunID+ext)
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", h.dataStore.GetLastUpdated().UTC().Format(http.TimeFormat))
	if matchesETag(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, res.Dataset); err != nil {
		logging.Error("Failed to render dataset", "format", ext, "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, export.ErrSpreadsheetUnavailable) {
			code = http.StatusServiceUnavailable
		}
		RespondWithError(w, code, "Failed to render dataset")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.outputName+ext))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ServeSummary returns the report of the latest run.
func (h *HTTPHandlerImpl) ServeSummary(w http.ResponseWriter, r *http.Request) {
	res := h.currentResult(w)
	if res == nil {
		return
	}
	RespondWithJSON(w, http.StatusOK, newSummaryResponse(res))
}

// GetRecord returns one stored record document.
func (h *HTTPHandlerImpl) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateRecordID(id); err != nil {
		logging.Warn("Unusual user input", "id", id)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.records.Get(id)
	switch {
	case errors.Is(err, records.ErrRecordNotFound):
		RespondWithError(w, http.StatusNotFound, fmt.Sprintf("Record %s not found", id))
		return
	case err != nil:
		logging.Error("Failed to read record", "id", id, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to read record")
		return
	}

	RespondWithJSON(w, http.StatusOK, doc)
}

// PostRecord stores a record sent as a JSON document or as flat form
// fields such as baseline_age=30, which are nested back on Separator.
func (h *HTTPHandlerImpl) PostRecord(w http.ResponseWriter, r *http.Request) {
	doc, err := h.readRecord(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.layout.RecordID(doc)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateRecordID(id); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := h.records.Save(id, doc)
	if err != nil {
		logging.Error("Failed to store record", "id", id, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to store record")
		return
	}
	metrics.RecordsSavedTotal.Inc()

	w.Header().Set("Location", "/records/"+id)
	RespondWithJSON(w, http.StatusCreated, map[string]string{"id": id, "path": path})
}

func (h *HTTPHandlerImpl) readRecord(r *http.Request) (records.Document, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json", "":
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return records.Decode(raw)

	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
		return formDocument(r.PostForm, h.layout.IDKeys)
	}
	return nil, fmt.Errorf("unsupported content type %q", mediaType)
}

// formDocument re-nests flat form fields. A repeated field becomes a list.
// Identifier fields such as study_id stay top level as sent.
func formDocument(form map[string][]string, idKeys []string) (records.Document, error) {
	if len(form) == 0 {
		return nil, errors.New("empty form")
	}

	flat := make(map[string]any, len(form))
	for key, values := range form {
		if err := validation.ValidateFieldName(key); err != nil {
			return nil, err
		}
		switch len(values) {
		case 0:
		case 1:
			flat[key] = strings.TrimSpace(values[0])
		default:
			list := make([]any, len(values))
			for i, v := range values {
				list[i] = strings.TrimSpace(v)
			}
			flat[key] = list
		}
	}
	ids := make(map[string]any)
	for _, key := range idKeys {
		if v, ok := flat[key]; ok {
			ids[key] = v
			delete(flat, key)
		}
	}

	doc := flatten.Unflatten(flat)
	for key, v := range ids {
		doc[key] = v
	}
	return doc, nil
}

// Refresh re-runs the combiner and returns the new summary.
func (h *HTTPHandlerImpl) Refresh(w http.ResponseWriter, r *http.Request) {
	err := h.scheduler.RunNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrUpdateInProgress):
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, combine.ErrMissingInputDirectory),
		errors.Is(err, combine.ErrNoMatchingFiles),
		errors.Is(err, tabulate.ErrNoRows):
		RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		logging.Error("Refresh failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	h.ServeSummary(w, r)
}

// HealthCheck reports service health.
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, code := h.health.HealthCheck()
	RespondWithJSON(w, code, map[string]any{
		"status": status,
		"data":   details,
	})
}
