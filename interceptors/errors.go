package interceptors

import (
	"errors"
	"fmt"
)

var (
	// ErrReentrantInvocation is matched by errors returned from a second call to next
	ErrReentrantInvocation = errors.New("interceptor: continuation invoked more than once")
	// ErrUnrecovered is matched by every error that escapes a chain
	ErrUnrecovered = errors.New("interceptor: unrecovered failure")
	// ErrNilContext is returned when a chain is invoked without a context
	ErrNilContext = errors.New("interceptor: nil context")
	// ErrContextConsumed is returned when a context is invoked a second time
	ErrContextConsumed = errors.New("interceptor: context already invoked")
	// ErrInvocationFinished is returned by a continuation called after its
	// interceptor returned
	ErrInvocationFinished = errors.New("interceptor: continuation called after its interceptor returned")
)

// ReentrantInvocationError is returned by next when the interceptor at
// Position already continued the chain once
type ReentrantInvocationError struct {
	Interceptor string
	Position    int
}

func (e *ReentrantInvocationError) Error() string {
	return fmt.Sprintf("interceptor %s (position %d) invoked its continuation more than once",
		e.Interceptor, e.Position)
}

// Is matches ErrReentrantInvocation
func (e *ReentrantInvocationError) Is(target error) bool {
	return target == ErrReentrantInvocation
}

// UnrecoveredInterceptorError is the error surfaced by a chain when an
// interceptor or the terminal handler failed and no earlier interceptor
// absorbed the failure
type UnrecoveredInterceptorError struct {
	Interceptor string
	Position    int
	Err         error
	// Panic holds the recovered value when the failure was a panic
	Panic interface{}
	Stack []byte
}

func (e *UnrecoveredInterceptorError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("unrecovered panic in %s (position %d): %v", e.Interceptor, e.Position, e.Panic)
	}
	return fmt.Sprintf("unrecovered failure in %s (position %d): %v", e.Interceptor, e.Position, e.Err)
}

func (e *UnrecoveredInterceptorError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnrecovered
func (e *UnrecoveredInterceptorError) Is(target error) bool {
	return target == ErrUnrecovered
}

// IsPanic reports whether the failure was a recovered panic
func (e *UnrecoveredInterceptorError) IsPanic() bool {
	return e.Panic != nil
}

// FailedInterceptor returns the name of the step an escaped error originated
// from, if err carries that information
func FailedInterceptor(err error) (string, bool) {
	var ue *UnrecoveredInterceptorError
	if errors.As(err, &ue) {
		return ue.Interceptor, true
	}
	return "", false
}
