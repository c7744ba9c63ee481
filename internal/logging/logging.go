package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a zerolog logger writing to the console and a rotating log file.
// An empty file logs to the console only.
func New(level, file string) zerolog.Logger {
	return build(level, file, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func build(level, file string, console io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{console}
	if file != "" {
		// Ensure directory exists
		os.MkdirAll(filepath.Dir(file), 0755)
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).Level(lvl).With().Timestamp().Caller().Logger()
}
