package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

var (
	framePrefix    = []byte("data: ")
	frameSuffix    = []byte("\n\n")
	keepAliveFrame = []byte(": keep-alive\n\n")
)

// Headers are the response headers an SSE endpoint should send before the first frame.
var Headers = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}

// Writer encodes events as frames. It is safe for concurrent use so a heartbeat
// goroutine may share it with the event loop.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent validates, encodes and flushes ev.
func (w *Writer) WriteEvent(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(framePrefix); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if _, err := w.w.Write(frameSuffix); err != nil {
		return err
	}
	return w.flush()
}

// WriteKeepAlive writes a comment frame that receivers ignore.
func (w *Writer) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(keepAliveFrame); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) flush() error {
	switch f := w.w.(type) {
	case interface{ Flush() error }: // *bufio.Writer
		return f.Flush()
	case http.Flusher:
		f.Flush()
	}
	return nil
}
