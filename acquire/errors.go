package acquire

import (
	"fmt"
	"time"
)

// ConcurrentStartError is returned when the loop is started while a previous
// run has not yet stopped
type ConcurrentStartError struct {
	State State
}

func (e *ConcurrentStartError) Error() string {
	return fmt.Sprintf("acquire: cannot start, loop is %s", e.State)
}

// LoopShutdownTimeout is returned when the loop does not finish its
// in-flight cycle within the shutdown timeout.  The loop goroutine and the
// source are still owned by the loop and will be released when it exits.
type LoopShutdownTimeout struct {
	Timeout time.Duration
}

func (e *LoopShutdownTimeout) Error() string {
	return fmt.Sprintf("acquire: loop did not stop within %v", e.Timeout)
}
