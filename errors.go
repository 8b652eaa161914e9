package calltrace

import "errors"

var (
	// ErrNoTraceInProgress is returned when a span is completed or exited
	// without a matching Begin, or when a Status is completed twice.
	ErrNoTraceInProgress = errors.New("calltrace: no trace in progress")

	// ErrOutOfOrder is returned when a Status is completed while spans begun
	// under it are still open.
	ErrOutOfOrder = errors.New("calltrace: span completed out of order")

	// ErrGoexit is recorded by Trace when the traced function ends its
	// goroutine with runtime.Goexit, as t.FailNow does.
	ErrGoexit = errors.New("calltrace: goroutine exited")

	// ErrNilStatus is returned when End or Exception receives a nil Status.
	ErrNilStatus = errors.New("calltrace: nil status")

	// ErrEmptySinkPath is returned when a file sink has no path.
	ErrEmptySinkPath = errors.New("calltrace: empty sink path")
)

// Configuration errors.
var (
	ErrEmptyConfigPath   = errors.New("calltrace: empty config path")
	ErrUnsupportedFormat = errors.New("calltrace: unsupported config format")
	ErrLoadConfig        = errors.New("calltrace: failed to load config")
	ErrInvalidConfig     = errors.New("calltrace: invalid config")
)
