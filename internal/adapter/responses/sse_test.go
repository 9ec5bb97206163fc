package responses

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func collectFrames(t *testing.T, raw string) []string {
	t.Helper()
	var frames []string
	err := decodeFrames(context.Background(), strings.NewReader(raw), func(data []byte) error {
		frames = append(frames, string(data))
		return nil
	})
	if err != nil {
		t.Fatalf("decodeFrames: %v", err)
	}
	return frames
}

func TestDecodeFramesBasic(t *testing.T) {
	raw := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"

	frames := collectFrames(t, raw)

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0] != `{"a":1}` {
		t.Errorf("frame[0] = %q, want %q", frames[0], `{"a":1}`)
	}
	if frames[1] != `{"b":2}` {
		t.Errorf("frame[1] = %q, want %q", frames[1], `{"b":2}`)
	}
}

func TestDecodeFramesMultiLineData(t *testing.T) {
	// Consecutive data: lines belong to one frame, joined with newlines.
	raw := "data: line one\ndata: line two\n\n"

	frames := collectFrames(t, raw)

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0] != "line one\nline two" {
		t.Errorf("frame = %q, want %q", frames[0], "line one\nline two")
	}
}

func TestDecodeFramesSkipsOtherFields(t *testing.T) {
	raw := ": a comment\nevent: message\nid: 42\nretry: 1000\ndata: {\"ok\":true}\n\n"

	frames := collectFrames(t, raw)

	if len(frames) != 1 || frames[0] != `{"ok":true}` {
		t.Fatalf("expected 1 frame with payload, got %v", frames)
	}
}

func TestDecodeFramesNoSpaceAfterColon(t *testing.T) {
	// The space after "data:" is optional; only a single leading space is
	// trimmed from the value.
	raw := "data:{\"a\":1}\n\ndata:  padded\n\n"

	frames := collectFrames(t, raw)

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0] != `{"a":1}` {
		t.Errorf("frame[0] = %q, want %q", frames[0], `{"a":1}`)
	}
	if frames[1] != " padded" {
		t.Errorf("frame[1] = %q, want %q", frames[1], " padded")
	}
}

func TestDecodeFramesCRLF(t *testing.T) {
	raw := "data: {\"a\":1}\r\n\r\ndata: [DONE]\r\n\r\n"

	frames := collectFrames(t, raw)

	if len(frames) != 1 || frames[0] != `{"a":1}` {
		t.Fatalf("expected 1 frame, got %v", frames)
	}
}

func TestDecodeFramesStopsAtDone(t *testing.T) {
	raw := "data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {\"b\":2}\n\n"

	frames := collectFrames(t, raw)

	if len(frames) != 1 || frames[0] != `{"a":1}` {
		t.Fatalf("expected decoding to stop at the sentinel, got %v", frames)
	}
}

func TestDecodeFramesNoTrailingBlankLine(t *testing.T) {
	// A body that ends mid-frame still delivers what was buffered.
	raw := "data: {\"a\":1}"

	frames := collectFrames(t, raw)

	if len(frames) != 1 || frames[0] != `{"a":1}` {
		t.Fatalf("expected trailing frame to be delivered, got %v", frames)
	}
}

func TestDecodeFramesEmitError(t *testing.T) {
	raw := "data: one\n\ndata: two\n\n"
	boom := errors.New("boom")

	var count int
	err := decodeFrames(context.Background(), strings.NewReader(raw), func([]byte) error {
		count++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected decoding to stop after the first frame, emitted %d", count)
	}
}

func TestDecodeFramesLargeFrame(t *testing.T) {
	// A frame larger than the initial scan buffer must still decode.
	payload := strings.Repeat("x", 64*1024)
	raw := "data: " + payload + "\n\n"

	frames := collectFrames(t, raw)

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if len(frames[0]) != len(payload) {
		t.Errorf("frame length = %d, want %d", len(frames[0]), len(payload))
	}
}

func TestDecodeFramesContextCancel(t *testing.T) {
	// Slow producer; decoding should stop once the context expires.
	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		defer pw.Close()
		for i := 0; i < 100; i++ {
			if _, err := pw.Write([]byte("data: {}\n\n")); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	var count int
	err := decodeFrames(ctx, pr, func([]byte) error {
		count++
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if count >= 100 {
		t.Errorf("expected early stop, emitted %d frames", count)
	}
}

func TestDecodeFramesReadError(t *testing.T) {
	broken := io.MultiReader(strings.NewReader("data: {\"a\":1}\n\n"), &failingReader{})

	var frames int
	err := decodeFrames(context.Background(), broken, func([]byte) error {
		frames++
		return nil
	})

	if err == nil || !strings.Contains(err.Error(), "read stream") {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
	if frames != 1 {
		t.Errorf("expected the complete frame before the failure, got %d", frames)
	}
}

// failingReader errors on every Read.
type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}
