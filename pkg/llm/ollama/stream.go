package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// lineStream reads Ollama's newline-delimited JSON chunks.
type lineStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool

	closeOnce sync.Once
	closeErr  error
}

func newLineStream(body io.ReadCloser) *lineStream {
	return &lineStream{body: body, reader: bufio.NewReader(body)}
}

func (s *lineStream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("ollama stream ended before done: %w", io.ErrUnexpectedEOF)
			}
			return "", err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines
			continue
		}
		if chunk.Error != "" {
			s.done = true
			return "", fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
}

func (s *lineStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
