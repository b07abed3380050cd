package huggingface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"docchat-be/pkg/stream"
)

const doneSentinel = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// eventStream reads "data: {...}" frames until the [DONE] sentinel.
type eventStream struct {
	body    io.ReadCloser
	decoder *stream.Decoder
	done    bool

	closeOnce sync.Once
	closeErr  error
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{body: body, decoder: stream.NewDecoder(body)}
}

func (s *eventStream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		frame, err := s.decoder.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Some gateways close the connection without sending the sentinel.
				s.done = true
				return "", io.EOF
			}
			return "", err
		}
		if string(frame) == doneSentinel {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal(frame, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return "", fmt.Errorf("huggingface api returned error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
