package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"promptforge/pkg/domain"
)

// sseWriter emits stream events as server-sent `data: <json>` frames.
// Headers are written lazily on the first frame so failures before any
// emission can still produce a plain HTTP error response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Started reports whether any frame has been written.
func (s *sseWriter) Started() bool {
	return s.started
}

// Emit writes one event frame and flushes it to the client.
func (s *sseWriter) Emit(event domain.StreamEvent) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
