package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"content-agent-service/internal/entity"
)

func wantsStream(r *http.Request) bool {
	if v := r.URL.Query().Get("stream"); v == "1" || v == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeEvent(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// streamJob sends the record every interval when it changed, a
// keepalive comment otherwise, and closes after a terminal status or
// when the stream outlives MaxDuration.
func (h *Handler) streamJob(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	job, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	ctx := r.Context()
	if h.stream.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.stream.MaxDuration)
		defer cancel()
	}

	var wake <-chan struct{}
	if h.subs != nil {
		ch, unsubscribe, err := h.subs.Subscribe(ctx, id)
		if err != nil {
			h.log.Warn("subscribe job updates", "job_id", id.String(), "error", err)
		} else {
			wake = ch
			defer unsubscribe()
		}
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	defer h.metrics.StreamOpened()()

	interval := h.stream.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		data, err := json.Marshal(job)
		if err != nil {
			h.log.Error("encode job event", "job_id", id.String(), "error", err)
			return
		}
		if !bytes.Equal(data, last) {
			writeEvent(w, "job", data)
			last = data
		} else {
			fmt.Fprint(w, ": keepalive\n\n")
		}
		if job.Status.Terminal() {
			done, _ := json.Marshal(map[string]string{"status": string(job.Status)})
			writeEvent(w, "done", done)
			flusher.Flush()
			return
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			if r.Context().Err() == nil {
				writeEvent(w, "timeout", []byte(`{}`))
				flusher.Flush()
			}
			return
		case <-ticker.C:
		case <-wake:
		}

		job, err = h.jobSvc.GetJob(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			msg := "internal error"
			if errors.Is(err, entity.ErrNotFound) {
				msg = "job not found"
			} else {
				h.log.Error("stream reload job", "job_id", id.String(), "error", err)
			}
			b, _ := json.Marshal(apiError{Message: msg})
			writeEvent(w, "error", b)
			flusher.Flush()
			return
		}
	}
}
