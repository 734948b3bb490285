package runner

import "time"

// Result holds the outcome of one process execution.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // process exit code; TimeoutExitCode when killed on timeout
	Stdout    []byte        // captured stdout (Pipe mode only, may be truncated)
	Stderr    []byte        // captured stderr (Pipe mode only, may be truncated)
	Truncated bool          // true if output exceeded the size cap
	TimedOut  bool          // true if the process was killed on timeout
	Duration  time.Duration // wall time from start to exit
}
