// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"voicestage/internal/config"
)

// New returns a logger writing to the console and, when cfg.File is set, to a
// rotating file. The returned closer flushes the file.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if cfg.File == "" {
		return zerolog.New(console).Level(level).With().Timestamp().Logger(), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Clean(cfg.File),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	writer := zerolog.MultiLevelWriter(console, rotator)
	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
