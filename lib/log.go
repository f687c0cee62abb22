package lib

import (
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	LogTimeFormat = "2006-01-02T15:04:05.000"
)

func consoleWriter() zerolog.ConsoleWriter {
	if runtime.GOOS == "windows" {
		return zerolog.ConsoleWriter{Out: colorable.NewColorableStderr(), TimeFormat: LogTimeFormat}
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !ColorEnabled(), TimeFormat: LogTimeFormat}
}

// ZeroConsoleLog sends human readable logs to stderr so command output on stdout stays parseable.
func ZeroConsoleLog() {
	log.Logger = log.Output(consoleWriter())
}

// ZeroConsoleAndFileLog logs to the console and appends JSON lines to filename.
func ZeroConsoleAndFileLog(filename string) error {
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		ZeroConsoleLog()
		log.Error().Err(err).Str("file", filename).Msg("Error setting up log file, logging to console only")
		return err
	}

	mw := io.MultiWriter(logFile, consoleWriter())
	log.Logger = zerolog.New(mw).With().Timestamp().Logger()
	return nil
}

// SetLogLevel sets the global level, debug when requested, info otherwise.
func SetLogLevel(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
