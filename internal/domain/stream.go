package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Default stream settings applied by NewResponseStream.
const (
	DefaultEventTimeout = 30 * time.Second
	DefaultStreamBuffer = 64
)

// StreamConfig configures a ResponseStream.
type StreamConfig struct {
	// EventTimeout bounds the gap between two consecutive deliveries.
	// Zero selects DefaultEventTimeout; negative disables the timeout.
	EventTimeout time.Duration
	// MaxBuffer is the bounded event buffer size; <=0 selects
	// DefaultStreamBuffer.
	MaxBuffer int
	// Backpressure makes Push block while the buffer is full instead of
	// dropping the event.
	Backpressure bool
}

// ResponseStream is a single-consumer, cancellable sequence of response
// events with a per-event idle timeout and a bounded buffer.
//
// The producer side (Push, Complete, Fail, Abort) is driven by exactly one
// read loop; the consumer side (Next) must be called from one goroutine.
// Terminal transitions are idempotent: once the stream completed, failed,
// or was aborted, further producer calls are no-ops. Buffered events are
// drained before a Completed or Errored terminal is delivered; an abort
// discards them. The terminal condition itself is delivered exactly once,
// clean completion as io.EOF and failure or abort as their error, and every
// Next after that returns ErrStreamClosed.
type ResponseStream struct {
	ch   chan ResponseEvent
	done chan struct{}

	mu       sync.Mutex
	err      error // terminal error; nil means clean completion
	aborted  bool
	closed   atomic.Bool
	dropped  atomic.Int64
	timeout  time.Duration
	blocking bool

	// Owned by the consumer goroutine.
	terminalSeen bool
}

// NewResponseStream creates a stream with the given configuration.
func NewResponseStream(cfg StreamConfig) *ResponseStream {
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = DefaultStreamBuffer
	}
	if cfg.EventTimeout == 0 {
		cfg.EventTimeout = DefaultEventTimeout
	}
	return &ResponseStream{
		ch:       make(chan ResponseEvent, cfg.MaxBuffer),
		done:     make(chan struct{}),
		timeout:  cfg.EventTimeout,
		blocking: cfg.Backpressure,
	}
}

// Push hands one event to the stream. After a terminal transition it is a
// no-op returning ErrStreamClosed. With backpressure enabled a full buffer
// blocks until the consumer drains, the stream terminates, or ctx is
// canceled; without it the event is dropped and counted.
func (s *ResponseStream) Push(ctx context.Context, ev ResponseEvent) error {
	if s.closed.Load() {
		return NewDomainError("Stream.Push", ErrStreamClosed, "")
	}

	if s.blocking {
		select {
		case s.ch <- ev:
			return nil
		case <-s.done:
			return NewDomainError("Stream.Push", ErrStreamClosed, "")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return NewDomainError("Stream.Push", ErrStreamClosed, "")
	default:
		s.dropped.Add(1)
		return nil
	}
}

// Complete marks a clean end of the stream. Idempotent; reports whether
// this call performed the transition.
func (s *ResponseStream) Complete() bool {
	return s.terminate(nil, false)
}

// Fail marks the stream as errored. Idempotent; the first terminal wins and
// the return value reports whether this call was it.
func (s *ResponseStream) Fail(err error) bool {
	if err == nil {
		err = ErrResponseFailed
	}
	return s.terminate(err, false)
}

// Abort cancels the stream: the pending wait is rejected and buffered
// events are discarded. Idempotent; reports whether this call performed
// the transition.
func (s *ResponseStream) Abort() bool {
	return s.terminate(NewDomainError("Stream.Abort", ErrStreamAborted, ""), true)
}

func (s *ResponseStream) terminate(err error, aborted bool) bool {
	if s.closed.Swap(true) {
		return false
	}
	s.mu.Lock()
	s.err = err
	s.aborted = aborted
	s.mu.Unlock()
	close(s.done)
	return true
}

// Dropped reports how many events were discarded because the buffer was
// full while backpressure was disabled.
func (s *ResponseStream) Dropped() int64 {
	return s.dropped.Load()
}

// Next blocks until the next event is available and returns it. It returns
// io.EOF after a clean completion, the terminal error after a failure,
// abort, or idle timeout, and ErrStreamClosed on every call after the
// terminal condition was delivered.
func (s *ResponseStream) Next(ctx context.Context) (ResponseEvent, error) {
	if s.terminalSeen {
		return nil, NewDomainError("Stream.Next", ErrStreamClosed, "")
	}

	// Buffered events are delivered ahead of a completed/errored terminal;
	// an abort stops delivery immediately.
	if !s.isAborted() {
		select {
		case ev := <-s.ch:
			return ev, nil
		default:
		}
	}
	select {
	case <-s.done:
		return s.finish()
	default:
	}

	var timeC <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeC = timer.C
	}

	select {
	case ev := <-s.ch:
		return ev, nil
	case <-s.done:
		return s.finish()
	case <-timeC:
		// An event or terminal racing the timer wins.
		select {
		case ev := <-s.ch:
			return ev, nil
		default:
		}
		select {
		case <-s.done:
			return s.finish()
		default:
		}
		err := NewDomainError("Stream.Next", ErrStreamTimeout, fmt.Sprintf("no event within %s", s.timeout))
		s.terminate(err, false)
		s.terminalSeen = true
		return nil, err
	case <-ctx.Done():
		s.Abort()
		s.terminalSeen = true
		return nil, NewDomainError("Stream.Next", ErrStreamAborted, ctx.Err().Error())
	}
}

// finish drains any event that raced the terminal transition, then hands
// the terminal condition to the consumer.
func (s *ResponseStream) finish() (ResponseEvent, error) {
	if !s.isAborted() {
		select {
		case ev := <-s.ch:
			return ev, nil
		default:
		}
	}
	s.terminalSeen = true
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err == nil {
		return nil, io.EOF
	}
	return nil, err
}

func (s *ResponseStream) isAborted() bool {
	if !s.closed.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// IsTerminal reports whether the stream reached a terminal state.
func (s *ResponseStream) IsTerminal() bool {
	return s.closed.Load()
}

// Done returns a channel that is closed once the stream reaches a terminal
// state. Producers use it to release resources tied to the stream, such as
// the network body feeding it.
func (s *ResponseStream) Done() <-chan struct{} {
	return s.done
}

// IsClosed reports whether err signals that a stream will produce nothing
// further (clean end or post-terminal read).
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrStreamClosed)
}
