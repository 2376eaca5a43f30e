package schedcore

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is schedcore's structured logging handle: a logiface.Logger
// writing stumpy's compact JSON-lines encoding.
type Logger = logiface.Logger[*stumpy.Event]

// NewLogger constructs a Logger writing level-and-above records to w as
// stumpy-encoded JSON lines. level may be logiface.LevelDisabled to
// construct a Logger that does no work at all (its documented
// zero-overhead behavior).
func NewLogger(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return logiface.New[*stumpy.Event](
		stumpy.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](level),
	)
}

// disabledLogger returns a zero-overhead Logger for schedulers
// constructed without WithLogger.
func disabledLogger() *Logger {
	return logiface.New[*stumpy.Event](
		logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled),
	)
}

// logLifecycle logs a scheduler construction/close event at Info level.
// Logger is a generic alias for a type declared in another package, so
// these are free functions rather than methods on *Logger.
func logLifecycle(l *Logger, msg string) {
	l.Info().Log(msg)
}

// logPollError logs an adapter Poll failure at Error level.
func logPollError(l *Logger, err error) {
	l.Err().Err(err).Log("poll failed")
}
