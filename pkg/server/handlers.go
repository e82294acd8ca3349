package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/tracedump/pkg/aggregate"
	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/export"
	"github.com/nicktill/tracedump/pkg/httpx"
	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/server/monitor"
	"github.com/nicktill/tracedump/pkg/storage"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Uptime  string               `json:"uptime"`
	Reload  monitor.ReloadStatus `json:"reload"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if !s.reloads.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	httpx.RespondJSON(w, code, HealthResponse{
		Status:  status,
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Reload:  s.reloads.Status(),
	})
}

// SeriesList describes the loaded series.
type SeriesList struct {
	Keys     []string  `json:"keys"`
	Start    int64     `json:"start"`
	End      int64     `json:"end"`
	Events   int64     `json:"events"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Server) handleSeriesList(w http.ResponseWriter, r *http.Request) {
	agg, loadedAt := s.current()
	start, end, _ := agg.Range()
	httpx.RespondJSON(w, http.StatusOK, SeriesList{
		Keys:     agg.Keys(),
		Start:    start,
		End:      end,
		Events:   agg.Events(),
		LoadedAt: loadedAt,
	})
}

// SeriesResponse is one folded series.
type SeriesResponse struct {
	Key  string       `json:"key"`
	Rows []series.Row `json:"rows"`
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	agg, _ := s.current()
	rows, err := agg.FinalizeGlobal()
	s.respondRows(w, r, series.GlobalKey, rows, err)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	agg, _ := s.current()
	if !agg.Has(key) {
		httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("unknown series %q", key))
		return
	}
	rows, err := agg.Finalize(key)
	s.respondRows(w, r, key, rows, err)
}

// respondRows writes JSON, or CSV with ?format=csv. A range too wide to
// fold is reported as 422.
func (s *Server) respondRows(w http.ResponseWriter, r *http.Request, key string, rows []series.Row, err error) {
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, aggregate.ErrSpanTooLarge) {
			code = http.StatusUnprocessableEntity
		}
		httpx.RespondError(w, code, err)
		return
	}
	switch r.URL.Query().Get("format") {
	case "", "json":
		if rows == nil {
			rows = []series.Row{}
		}
		httpx.RespondJSON(w, http.StatusOK, SeriesResponse{Key: key, Rows: rows})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if _, err := export.ExportRowsCSV(w, key, rows); err != nil {
			log.Printf("❌ Failed to write CSV for %s: %v", key, err)
		}
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, "format must be json or csv")
	}
}

// StatsResponse combines the in-memory series with the store, if any.
type StatsResponse struct {
	Series    int            `json:"series"`
	Events    int64          `json:"events"`
	Store     *storage.Stats `json:"store,omitempty"`
	DiskBytes int64          `json:"disk_bytes,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	agg, _ := s.current()
	resp := StatsResponse{
		Series: len(agg.Keys()),
		Events: agg.Events(),
	}

	if s.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), config.StoreStatsTimeout)
		defer cancel()
		stats, err := s.cfg.Store.Stats(ctx)
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Store = stats
	}
	if s.usage != nil {
		used, err := s.usage.GetUsage()
		if err != nil {
			log.Printf("⚠️  Failed to measure %s: %v", s.usage.Path(), err)
		} else {
			resp.DiskBytes = used
		}
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"path": url.PathEscape,
}).Parse(`<html>
  <head><title>tracedump</title></head>
  <body style="width: 820px; margin-right: auto; margin-left: auto">
    <h1>Series</h1>
    <p>{{.Events}} events from {{.Start}} to {{.End}}, loaded {{.LoadedAt.Format "2006-01-02 15:04:05"}}</p>
    <ul>
      <li><a href="/v1/series/global">global</a> (<a href="/v1/series/global?format=csv">csv</a>)</li>
{{- range .Keys}}
      <li><a href="/v1/series/{{path .}}">{{.}}</a> (<a href="/v1/series/{{path .}}?format=csv">csv</a>)</li>
{{- end}}
    </ul>
  </body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	agg, loadedAt := s.current()
	start, end, _ := agg.Range()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, SeriesList{
		Keys:     agg.Keys(),
		Start:    start,
		End:      end,
		Events:   agg.Events(),
		LoadedAt: loadedAt,
	}); err != nil {
		log.Printf("❌ Failed to render index: %v", err)
	}
}
