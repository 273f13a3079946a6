package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	SinkStdout = "stdout"
	SinkFile   = "file"
	SinkDB     = "db"
)

type Config struct {
	Env   string `env:"ENV,default=development"`
	Sink  string `env:"LOG_SINK,default=stdout"`
	Dir   string `env:"LOG_DIR,default=/app/logs"`
	Level string `env:"LOG_LEVEL,default=info"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the process logger for service. The db sink needs db; the other
// sinks ignore it. The returned closer releases the log file, if any.
func New(cfg Config, service string, db *gorm.DB) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stdout
	if cfg.Env == "development" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Sink {
	case "", SinkStdout:
		out = console
	case SinkFile:
		f, err := openDayFile(cfg.Dir, service, time.Now())
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		out, closer = f, f
	case SinkDB:
		if db == nil {
			return zerolog.Nop(), nil, errors.New("log sink db needs a database")
		}
		fallback, err := openDayFile(cfg.Dir, service, time.Now())
		if err != nil {
			// Without a writable log dir, failed inserts fall back to stderr.
			out = zerolog.MultiLevelWriter(console, NewDBWriter(db, os.Stderr))
			break
		}
		out, closer = zerolog.MultiLevelWriter(console, NewDBWriter(db, fallback)), fallback
	default:
		return zerolog.Nop(), nil, fmt.Errorf("unknown log sink %q", cfg.Sink)
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
	return logger, closer, nil
}

// FileName is the day-stamped log file for service.
func FileName(service string, day time.Time) string {
	return fmt.Sprintf("%s - %s.txt", service, day.Format("02-01-2006"))
}

func openDayFile(dir, service string, day time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(filepath.Join(dir, FileName(service, day)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
