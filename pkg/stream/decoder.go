package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decoder reads frames from a byte stream whose read boundaries need not line up
// with frame boundaries. Frames that cannot be decoded are skipped.
type Decoder struct {
	r           *bufio.Reader
	skipped     int
	onMalformed func(raw []byte, err error)
}

type DecoderOption func(*Decoder)

// WithMalformedHandler registers a callback invoked for every skipped frame.
func WithMalformedHandler(fn func(raw []byte, err error)) DecoderOption {
	return func(d *Decoder) {
		d.onMalformed = fn
	}
}

func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{r: bufio.NewReader(r)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NextFrame returns the data payload of the next complete frame. Multiple data
// lines in one frame are joined with '\n'; comment, event, id and retry fields are
// ignored. It returns io.EOF at a clean end of stream and io.ErrUnexpectedEOF when
// the stream ends inside a frame.
func (d *Decoder) NextFrame() ([]byte, error) {
	var data []byte
	hasData := false

	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if hasData || len(bytes.TrimSpace(line)) > 0 {
					return nil, io.ErrUnexpectedEOF
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if hasData {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		if field != "data" {
			continue
		}
		if hasData {
			data = append(data, '\n')
		}
		data = append(data, value...)
		hasData = true
	}
}

// Next returns the next valid event, skipping frames that fail to decode or validate.
func (d *Decoder) Next() (Event, error) {
	for {
		raw, err := d.NextFrame()
		if err != nil {
			return Event{}, err
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			d.skip(raw, fmt.Errorf("decode frame: %w", err))
			continue
		}
		if err := ev.Validate(); err != nil {
			d.skip(raw, err)
			continue
		}
		return ev, nil
	}
}

// Skipped returns how many frames were dropped as malformed.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) skip(raw []byte, err error) {
	d.skipped++
	if d.onMalformed != nil {
		d.onMalformed(raw, err)
	}
}

func splitField(line []byte) (string, []byte) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), nil
	}
	value := line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:idx]), value
}
