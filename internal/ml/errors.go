package ml

import "fmt"

// panicError wraps a panic raised by a Scorer
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("scorer panicked: %v", e.value)
}
