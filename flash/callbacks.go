package flash

import "time"

// Progress phases.
const (
	PhaseScanning    = "scanning"
	PhaseMarking     = "marking"
	PhaseErasing     = "erasing"
	PhaseProgramming = "programming"
	PhaseComplete    = "complete"
)

// Progress contains information about a long-running operation.
// Passed to ProgressCallback during scans, clean marker passes and programming.
type Progress struct {
	// Phase describes the current operation phase:
	//   "scanning"    - Building a bad block table
	//   "marking"     - Writing clean markers
	//   "erasing"     - Erasing the next good unit
	//   "programming" - Programming pages
	//   "complete"    - Operation completed successfully
	Phase string

	// Current is the number of units or pages processed so far
	Current int

	// Total is the number of units or pages the operation covers
	Total int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// BytesWritten is the total number of bytes programmed so far
	BytesWritten int

	// BadBlocks is the number of bad units found or skipped so far
	BadBlocks int

	// ElapsedTime is the time elapsed since the operation started
	ElapsedTime time.Duration
}

// ProgressCallback is called periodically to report progress.
// Implementations should return quickly to avoid blocking the operation.
//
// Example:
//
//	client := flash.New(svc, attrs,
//	    flash.WithProgressCallback(func(p flash.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %d/%d\n",
//	            p.Phase, p.Percentage, p.Current, p.Total)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the client.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	client := flash.New(svc, attrs, flash.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

func percent(current, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(current) / float64(total) * 100
}
