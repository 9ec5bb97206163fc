package responses

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
)

// SSE framing constants per the eventsource wire format.
const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"

	// Most frames are small text deltas, but output_item.done frames can
	// carry whole tool outputs.
	initialScanBuffer = 16 * 1024
	maxScanBuffer     = 1024 * 1024
)

// decodeFrames reads server-sent events from r and calls emit once per
// complete data frame. A frame is one or more consecutive data: lines
// followed by a blank line; multi-line payloads are joined with newlines.
// Other field lines (event:, id:, retry:, comments) are skipped. Decoding
// stops at the [DONE] sentinel, at EOF, when ctx is cancelled, or on the
// first error returned by emit.
func decodeFrames(ctx context.Context, r io.Reader, emit func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScanBuffer), maxScanBuffer)

	var frame bytes.Buffer
	prefix := []byte(dataPrefix)
	done := []byte(doneMarker)

	// flush hands the accumulated frame to emit and resets the buffer.
	// Returns true when the sentinel frame was seen.
	flush := func() (bool, error) {
		if frame.Len() == 0 {
			return false, nil
		}
		data := frame.Bytes()
		if bytes.Equal(data, done) {
			frame.Reset()
			return true, nil
		}
		err := emit(data)
		frame.Reset()
		return false, err
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))

		if len(bytes.TrimSpace(line)) == 0 {
			// Blank line terminates the frame.
			if sentinel, err := flush(); sentinel || err != nil {
				return err
			}
			continue
		}
		if !bytes.HasPrefix(line, prefix) {
			continue
		}
		payload := line[len(prefix):]
		// The field value may carry a single leading space.
		if len(payload) > 0 && payload[0] == ' ' {
			payload = payload[1:]
		}
		if frame.Len() > 0 {
			frame.WriteByte('\n')
		}
		frame.Write(payload)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	// Body ended without a trailing blank line; deliver what is buffered.
	_, err := flush()
	return err
}
