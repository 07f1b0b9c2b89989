package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

var HeartbeatInterval = 15 * time.Second

// ServeSSE streams every value from ch as an SSE event until ch closes or the
// request ends.
func ServeSSE[T any](w http.ResponseWriter, r *http.Request, log *logger.Logger, event Event, ch <-chan T) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client context done", "event", event, "err", ctx.Err())
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case v, ok := <-ch:
			if !ok {
				return
			}
			raw, err := json.Marshal(v)
			if err != nil {
				log.Warn("Failed to marshal SSE payload", "event", event, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
			flusher.Flush()
		}
	}
}
