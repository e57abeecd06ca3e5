package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/export"
	"github.com/kalambet/jobtrack/internal/listview"
	"github.com/kalambet/jobtrack/internal/profile"
	"github.com/kalambet/jobtrack/internal/recordstore"
)

const maxRequestBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Records *recordstore.Service
	Profile *profile.Manager
	Tokens  TokenResolver
	View    listview.View
	Logger  *slog.Logger
	// Now stamps export filenames; defaults to time.Now.
	Now func() time.Time
	// Health, when set, is checked by GET /health.
	Health func(ctx context.Context) error
}

// ListResponse is the list screen: the filtered, sorted rows plus what the
// filter bar needs.
type ListResponse struct {
	Applications []application.Application `json:"applications"`
	Count        int                       `json:"count"`
	Total        int                       `json:"total"`
	Empty        bool                      `json:"empty"`
	JobTypes     []application.JobType     `json:"jobTypes"`
	Sort         listview.SortState        `json:"sort"`
	KPIs         listview.KPIs             `json:"kpis"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Tokens))

		r.Get("/session", handleSession)
		r.Get("/applications", handleListApplications(deps))
		r.Post("/applications", handleCreateApplication(deps))
		r.Get("/applications/export", handleExportApplications(deps))
		r.Get("/applications/stream", handleStreamApplications(deps))
		r.Get("/applications/{id}", handleGetApplication(deps))
		r.Patch("/applications/{id}", handleUpdateApplication(deps))
		r.Delete("/applications/{id}", handleDeleteApplication(deps))
		r.Get("/applications/{id}/events", handleListEvents(deps))
		r.Get("/analytics", handleAnalytics(deps))
		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"principal": principal(r)})
}

// parseView reads the filter and sort query parameters shared by list,
// export and stream.
func parseView(w http.ResponseWriter, r *http.Request) (listview.FilterState, listview.SortState, bool) {
	q := r.URL.Query()
	f, err := listview.ParseFilter(q)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return f, listview.SortState{}, false
	}
	s, err := listview.ParseSort(q)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return f, s, false
	}
	return f, s, true
}

func buildList(v listview.View, records []application.Application, f listview.FilterState, s listview.SortState) ListResponse {
	rows := v.Apply(records, f, s)
	return ListResponse{
		Applications: rows,
		Count:        len(rows),
		Total:        len(records),
		Empty:        len(rows) == 0,
		JobTypes:     listview.JobTypeOptions(records),
		Sort:         s,
		KPIs:         listview.Aggregate(records).KPIs(),
	}
}

func handleListApplications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, s, ok := parseView(w, r)
		if !ok {
			return
		}
		records, err := deps.Records.List(r.Context(), principal(r))
		if err != nil {
			writeError(w, err, "applications")
			return
		}
		writeJSON(w, http.StatusOK, buildList(deps.View, records, f, s))
	}
}

func handleCreateApplication(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var c application.Candidate
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		id, err := deps.Records.Create(r.Context(), principal(r), c)
		if err != nil {
			writeError(w, err, "application")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func handleGetApplication(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Records.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "application")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleUpdateApplication(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var p application.Patch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if p.Empty() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no fields to update")
			return
		}

		a, err := deps.Records.Update(r.Context(), principal(r), chi.URLParam(r, "id"), p)
		if err != nil {
			writeError(w, err, "application")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleDeleteApplication(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Records.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
			writeError(w, err, "application")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Records.Events(r.Context(), principal(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err, "events")
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func handleExportApplications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		f, s, ok := parseView(w, r)
		if !ok {
			return
		}
		records, err := deps.Records.List(r.Context(), principal(r))
		if err != nil {
			writeError(w, err, "applications")
			return
		}

		rows := deps.View.Apply(records, f, s)
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(deps.Now())+`"`)
		if err := export.Write(w, format, rows); err != nil {
			deps.Logger.Error("export failed", "format", format, "error", err)
		}
	}
}

func handleAnalytics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Records.List(r.Context(), principal(r))
		if err != nil {
			writeError(w, err, "analytics")
			return
		}
		a := listview.Aggregate(records)
		writeJSON(w, http.StatusOK, struct {
			listview.Analytics
			KPIs listview.KPIs `json:"kpis"`
		}{a, a.KPIs()})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.GetProfile(principal(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var u profile.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := deps.Profile.Apply(principal(r), u)
		if err != nil {
			writeError(w, err, "profile")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
