package export

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/httpx"
	"github.com/nicktill/tracedump/pkg/storage"
)

// Handler serves the export and import routes of a store.
type Handler struct {
	exporter *Exporter
	importer *Importer
}

// NewHandler creates a handler over store.
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		exporter: NewExporter(store),
		importer: NewImporter(store),
	}
}

// HandleExport handles GET /v1/export
// Query params:
//   - format: "json" or "csv" (default: json)
//   - start, end: unix seconds, inclusive (default: everything)
//   - key: endpoint key filter, repeatable (optional)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "use GET")
		return
	}

	opts, err := exportOptions(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.StoreQueryTimeout)
	defer cancel()

	contentType := "application/json"
	if opts.Format == "csv" {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tracedump-%s.%s",
		time.Now().Format("20060102-150405"), opts.Format))

	var result *ExportResult
	if opts.Format == "json" {
		result, err = h.exporter.ExportBucketsJSON(ctx, w, opts)
	} else {
		result, err = h.exporter.ExportBucketsCSV(ctx, w, opts)
	}
	if err != nil {
		// Only a failed query reaches here before the body is started
		log.Printf("❌ Export failed: %v", err)
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	log.Printf("✅ Exported %d buckets (%s) from %s", result.BucketsExported, opts.Format, result.TimeRange)
}

func exportOptions(r *http.Request) (ExportOptions, error) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		return ExportOptions{}, fmt.Errorf("format must be json or csv, got %q", format)
	}

	opts := ExportOptionsAll(format)
	var err error
	if opts.Start, err = parseSecondParam(query.Get("start"), opts.Start); err != nil {
		return ExportOptions{}, fmt.Errorf("invalid start: %w", err)
	}
	if opts.End, err = parseSecondParam(query.Get("end"), opts.End); err != nil {
		return ExportOptions{}, fmt.Errorf("invalid end: %w", err)
	}
	if opts.Start > opts.End {
		return ExportOptions{}, fmt.Errorf("start %d is after end %d", opts.Start, opts.End)
	}
	opts.Keys = query["key"]
	return opts, nil
}

// HandleImport handles POST /v1/import. The body is a JSON backup whose
// buckets are merged into the store.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		httpx.RespondErrorString(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	result, err := h.importer.ImportFromJSON(r.Context(), r.Body)
	if err != nil {
		log.Printf("❌ Import failed: %v", err)
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	if n := len(result.Errors); n > 0 {
		log.Printf("⚠️  Import skipped %d invalid buckets, first: %s", n, result.Errors[0])
	}
	log.Printf("✅ Imported %d buckets in %d batches from %s", result.BucketsImported, result.BatchesWritten, result.TimeRange)
	httpx.RespondJSON(w, http.StatusOK, result)
}

// parseSecondParam parses unix seconds or returns def for an empty value.
func parseSecondParam(param string, def int64) (int64, error) {
	if param == "" {
		return def, nil
	}
	return strconv.ParseInt(param, 10, 64)
}
