package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval keeps idle proxies from closing a quiet stream.
const keepAliveInterval = 25 * time.Second

// handleStreamApplications pushes the list view as server-sent events: one
// "snapshot" event per delivered record set, recomputed with the request's
// filter and sort. A store failure is sent as an "error" event and ends the
// stream.
func handleStreamApplications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, s, ok := parseView(w, r)
		if !ok {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		snapshots, err := deps.Records.Subscribe(r.Context(), principal(r))
		if err != nil {
			writeError(w, err, "applications")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				if snap.Err != nil {
					deps.Logger.Warn("snapshot stream failed", "error", snap.Err)
					writeEvent(w, "error", map[string]any{
						"error": map[string]any{
							"message": snap.Err.Error(),
							"type":    "server_error",
						},
					})
					flusher.Flush()
					return
				}
				if err := writeEvent(w, "snapshot", buildList(deps.View, snap.Records, f, s)); err != nil {
					deps.Logger.Debug("stream client gone", "error", err)
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
