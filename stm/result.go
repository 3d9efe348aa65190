package stm

import "github.com/pingcap/errors"

var (
	// ErrAborted is returned when a transaction body returns Abort.
	ErrAborted = errors.New("transaction aborted")
	// ErrRetry is returned when a transaction body returns Retry without having observed a conflict. Unlike ErrAborted
	// it means nothing raced with the attempt, so running the transaction again later may succeed.
	ErrRetry = errors.New("transaction requested retry")
)

// Status is the outcome a transaction body reports to the engine.
type Status int

const (
	StatusOk Status = iota
	StatusRetry
	StatusAbort
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusRetry:
		return "retry"
	case StatusAbort:
		return "abort"
	}
	return "unknown"
}

// Result is returned by a transaction body.
type Result[T any] struct {
	status Status
	value  T
}

// Ok reports success with value v.
func Ok[T any](v T) Result[T] {
	return Result[T]{status: StatusOk, value: v}
}

// Retry asks the engine to give up on this call without committing. If the attempt observed a conflict it is retried
// internally instead.
func Retry[T any]() Result[T] {
	return Result[T]{status: StatusRetry}
}

// Abort ends the call without committing and without retrying.
func Abort[T any]() Result[T] {
	return Result[T]{status: StatusAbort}
}

func (r Result[T]) Status() Status {
	return r.status
}

// Value returns the value carried by an Ok result.
func (r Result[T]) Value() T {
	return r.value
}
