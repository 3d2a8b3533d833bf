package unpackr

// Logger is the logging interface this library uses for operational output.
// Satisfy it with your own logger, or use NoLogger to silence everything.
type Logger interface {
	// Printf is used for normal-output log lines.
	Printf(msg string, v ...any)
	// Debugf is used for debug-output log lines.
	Debugf(msg string, v ...any)
}

// NoLogger gives you an empty Logger for cases when you don't want any output.
func NoLogger() Logger { return &antiLogger{} }

type antiLogger struct{}

func (*antiLogger) Printf(_ string, _ ...any) {}
func (*antiLogger) Debugf(_ string, _ ...any) {}
