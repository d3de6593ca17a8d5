package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// sseWriter frames events as Server-Sent Events. Each frame carries the
// event kind on a "type:" line, which EventSource ignores, followed by the
// JSON envelope on the "data:" line.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

// newSSEWriter commits the stream headers with the first flush. When w
// cannot flush nothing has been written yet, so the caller can still reply
// with an error status.
func newSSEWriter(w http.ResponseWriter, timeout time.Duration) (*sseWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sw := &sseWriter{w: w, rc: http.NewResponseController(w), timeout: timeout}
	if err := sw.rc.Flush(); err != nil {
		for _, key := range []string{"Content-Type", "Cache-Control", "Connection", "X-Accel-Buffering"} {
			h.Del(key)
		}
		return nil, fmt.Errorf("streaming unsupported: %w", err)
	}
	return sw, nil
}

func (sw *sseWriter) WriteFrame(frame Frame) error {
	if sw.timeout > 0 {
		err := sw.rc.SetWriteDeadline(time.Now().Add(sw.timeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}

	if _, err := fmt.Fprintf(sw.w, "type: %s\ndata: %s\n\n", frame.Type, frame.Payload); err != nil {
		return err
	}
	return sw.rc.Flush()
}
