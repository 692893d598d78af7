package engine

import (
	"errors"
	"fmt"
	"time"
)

// Configuration errors are raised before any bar is processed and are always
// fatal.
var (
	ErrNoStrategy     = errors.New("engine: no strategy configured")
	ErrNoBars         = errors.New("engine: empty bar sequence")
	ErrInvalidCapital = errors.New("engine: initial capital must be positive")
)

// ExecutionError wraps a failure raised while processing a single bar. It is
// fatal only when the run has ValidateTrades enabled; otherwise the engine
// logs it and continues with the next bar.
type ExecutionError struct {
	BarIndex int
	BarTime  time.Time
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("engine: bar %d (%s): %v", e.BarIndex, e.BarTime.Format(time.RFC3339), e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
