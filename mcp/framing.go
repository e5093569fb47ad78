package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// Encode renders m as a single JSON line without the trailing newline.
// json.Marshal escapes control characters, so the output never contains a
// raw line break.
func Encode(m *Message) ([]byte, error) {
	if m.JSONRPC == "" {
		m.JSONRPC = JSONRPCVersion
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return b, nil
}

// Decode parses one line into a Message. Errors wrap ErrMalformedMessage.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedMessage)
	}

	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if m.JSONRPC != JSONRPCVersion {
		return nil, fmt.Errorf("%w: unsupported jsonrpc version %q", ErrMalformedMessage, m.JSONRPC)
	}

	return &m, nil
}

// LineReader reads newline-delimited messages from a stream.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r. A line longer than 1 MiB is discarded up to its
// newline and reported as a *FrameError.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, initialLineBuffer)}
}

// ReadMessage returns the next message. Blank lines are skipped and a
// trailing carriage return is dropped. It returns io.EOF at end of input and
// a *FrameError for a line that does not decode or is too long; reading may
// continue after a FrameError.
func (r *LineReader) ReadMessage() (*Message, error) {
	for {
		line, tooLong, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read error: %w", err)
		}

		if tooLong {
			return nil, &FrameError{
				Line: line,
				Err:  fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedMessage, maxLineSize),
			}
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		m, err := Decode(line)
		if err != nil {
			return nil, &FrameError{Line: line, Err: err}
		}
		return m, nil
	}
}

// readLine returns the next line, newline included. Once a line passes
// maxLineSize the rest of it is drained and only its first bytes are kept.
// A final line without a newline is returned before io.EOF.
func (r *LineReader) readLine() (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize+1 {
				tooLong = true
				line = append(line, chunk...)
				line = line[:min(len(line), 256)]
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 || tooLong {
				return line, tooLong, nil
			}
			return nil, false, io.EOF
		case err != nil:
			return nil, false, err
		}
		return line, tooLong, nil
	}
}

type flusher interface {
	Flush() error
}

// LineWriter writes one message per line. It is safe for concurrent use.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter wraps w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteMessage encodes m, appends a newline and writes it in one call,
// flushing when the destination buffers.
func (w *LineWriter) WriteMessage(m *Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if f, ok := w.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush message: %w", err)
		}
	}
	return nil
}
