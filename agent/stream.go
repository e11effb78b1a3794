// Copyright (c) Microsoft. All rights reserved.

package agent

import (
	"context"
	"sync"
)

// Stream is a pull-based iterator over values produced by a goroutine.
//
// Callers must call Close when done, or cancel the context the stream was
// created with.
type Stream[T any] struct {
	ch        <-chan T
	errCh     <-chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
	err       error
}

// NewStream runs producer in a goroutine and exposes what it sends as a
// Stream. The channel is closed when producer returns; its error is
// reported by Next once the values are exhausted.
func NewStream[T any](ctx context.Context, producer func(ctx context.Context, ch chan<- T) error) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan T, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		if err := producer(ctx, ch); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return &Stream[T]{
		ch:     ch,
		errCh:  errCh,
		cancel: cancel,
	}
}

// Next returns the next value. ok is false when the stream is exhausted;
// err is the producer's error, if any.
func (s *Stream[T]) Next(ctx context.Context) (val T, ok bool, err error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case v, open := <-s.ch:
		if !open {
			// errCh is written and closed before ch is closed.
			if e, ok := <-s.errCh; ok && e != nil {
				s.err = e
			}
			var zero T
			return zero, false, s.err
		}
		return v, true, nil
	}
}

// Collect drains the stream and returns all values.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var items []T
	for {
		val, ok, err := s.Next(ctx)
		if err != nil {
			return items, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, val)
	}
}

// Close cancels the producer and waits for it to stop. Safe to call more
// than once.
func (s *Stream[T]) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.ch {
		}
	})
	return nil
}

// MapStream transforms each value of src with fn.
func MapStream[A, B any](ctx context.Context, src *Stream[A], fn func(A) B) *Stream[B] {
	return PipeStream(ctx, src, func(a A) []B { return []B{fn(a)} }, nil)
}

// PipeStream feeds every value of src through step and emits what it
// returns, which may be nothing. Once src is exhausted flush, if non-nil, is
// called to emit anything step was holding back.
func PipeStream[A, B any](ctx context.Context, src *Stream[A], step func(A) []B, flush func() []B) *Stream[B] {
	return NewStream(ctx, func(ctx context.Context, ch chan<- B) error {
		defer src.Close()
		send := func(vals []B) error {
			for _, v := range vals {
				select {
				case ch <- v:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}
		for {
			val, ok, err := src.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := send(step(val)); err != nil {
				return err
			}
		}
		if flush != nil {
			return send(flush())
		}
		return nil
	})
}

// ResponseStream is the streaming result of [Agent.RunStream]. It records
// the updates it hands out so [ResponseStream.FinalResponse] can merge them.
type ResponseStream struct {
	stream    *Stream[ResponseUpdate]
	updates   []ResponseUpdate
	onFinal   func(ctx context.Context, resp *Response)
	finalOnce sync.Once
	final     *Response
}

// NewResponseStream wraps a raw update stream.
func NewResponseStream(stream *Stream[ResponseUpdate]) *ResponseStream {
	return &ResponseStream{stream: stream}
}

// Next returns the next update.
func (s *ResponseStream) Next(ctx context.Context) (ResponseUpdate, bool, error) {
	val, ok, err := s.stream.Next(ctx)
	if ok {
		s.updates = append(s.updates, val)
	}
	return val, ok, err
}

// FinalResponse drains the remaining updates and returns the merged
// [Response]. The agent's session, if any, is updated at this point.
func (s *ResponseStream) FinalResponse(ctx context.Context) (*Response, error) {
	for {
		val, ok, err := s.stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		s.updates = append(s.updates, val)
	}
	s.finalOnce.Do(func() {
		s.final = ResponseFromUpdates(s.updates)
		if s.onFinal != nil {
			s.onFinal(ctx, s.final)
		}
	})
	return s.final, nil
}

// Pipe returns a stream whose updates are rewritten by step and flush, see
// [PipeStream]. Updates already read from s are not replayed. The returned
// stream keeps the session hook of s, so the session records the rewritten
// response.
func (s *ResponseStream) Pipe(ctx context.Context, step func(ResponseUpdate) []ResponseUpdate, flush func() []ResponseUpdate) *ResponseStream {
	return &ResponseStream{
		stream:  PipeStream(ctx, s.stream, step, flush),
		onFinal: s.onFinal,
	}
}

// Close releases the underlying stream.
func (s *ResponseStream) Close() error {
	return s.stream.Close()
}
