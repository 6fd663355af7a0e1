package cli

import (
	"io"
	"log/slog"
)

// newLogger returns a text logger at Info level, or Debug when verbose.
// Logs go to w (stderr) so stdout stays parseable in JSON mode.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
