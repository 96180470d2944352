// Package race holds the generic primitives used to run operations against each
// other: a first-success combinator and a cancellation broadcast.
package race

import (
	"fmt"
	"strings"
)

// Op is a single operation raced by First.
type Op[T any] func() (T, error)

// AggregateError is returned by First when every operation failed. Errors holds
// one entry per operation, in the order the operations were supplied.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		if err == nil {
			msgs[i] = "<nil>"
			continue
		}

		msgs[i] = err.Error()
	}

	return fmt.Sprintf("all %d attempts failed: [%s]", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

type result[T any] struct {
	index int
	value T
	err   error
}

// First starts all ops concurrently and returns the value of the first one to
// succeed, without waiting for the others. If all ops fail, an *AggregateError
// is returned. Values of ops that succeed after the winner are passed to
// discard, when it is non-nil, and are otherwise dropped.
func First[T any](ops []Op[T], discard func(T)) (T, error) {
	var zero T

	if len(ops) == 0 {
		return zero, &AggregateError{}
	}

	// Buffered so that losers never block once nobody is listening anymore.
	results := make(chan result[T], len(ops))

	for i, op := range ops {
		go func(i int, op Op[T]) {
			v, err := op()
			results <- result[T]{index: i, value: v, err: err}
		}(i, op)
	}

	errs := make([]error, len(ops))

	for pending := len(ops); pending > 0; pending-- {
		r := <-results
		if r.err == nil {
			if discard != nil && pending > 1 {
				go drain(results, pending-1, discard)
			}

			return r.value, nil
		}

		errs[r.index] = r.err
	}

	return zero, &AggregateError{Errors: errs}
}

func drain[T any](results <-chan result[T], remaining int, discard func(T)) {
	for ; remaining > 0; remaining-- {
		if r := <-results; r.err == nil {
			discard(r.value)
		}
	}
}
