package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Stream.Next", ErrStreamTimeout, "no event within 100ms")
	want := "Stream.Next: no event within 100ms: stream idle timeout"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Stream.Abort", ErrStreamAborted, "")
	want := "Stream.Abort: stream aborted"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("sse.decode", ErrProtocolDecode, "frame 3")
	if !errors.Is(err, ErrProtocolDecode) {
		t.Error("errors.Is should match ErrProtocolDecode")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("Stream.Push", ErrStreamClosed, ""))
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Stream.Push" {
		t.Errorf("Op = %q, want %q", de.Op, "Stream.Push")
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
}

func TestHTTPStatusErrorSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{429, ErrRateLimited},
		{401, ErrAuthFailed},
		{403, ErrAuthFailed},
		{413, ErrContextOverflow},
		{500, ErrServerError},
		{503, ErrServerError},
	}
	for _, tc := range cases {
		err := &HTTPStatusError{StatusCode: tc.status}
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d should match %v", tc.status, tc.want)
		}
	}

	// Plain client errors carry no category sentinel.
	if errors.Is(&HTTPStatusError{StatusCode: 404}, ErrServerError) {
		t.Error("404 should not match ErrServerError")
	}
}

func TestHTTPStatusErrorMessage(t *testing.T) {
	err := &HTTPStatusError{StatusCode: 429, RetryAfter: 30 * time.Second, Detail: "slow down"}
	assert.Equal(t, "unexpected status 429: slow down", err.Error())
}

func TestErrorCodeOf(t *testing.T) {
	assert.Equal(t, CodeStreamTimeout, ErrorCodeOf(ErrStreamTimeout))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(&HTTPStatusError{StatusCode: 429}))
	assert.Equal(t, CodeResponseFailed, ErrorCodeOf(NewDomainError("translate", ErrResponseFailed, "boom")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("mystery")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}
