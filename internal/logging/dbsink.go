package logging

import (
	"encoding/json"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const maxLogMessage = 4000

// SystemLog is one persisted warning or error.
type SystemLog struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	LoggedAt time.Time `gorm:"column:logged_at;index"`
	Level    string    `gorm:"column:level;size:10"`
	Message  string    `gorm:"column:message;size:4000"`
	Module   string    `gorm:"column:module;size:200"`
	Actor    string    `gorm:"column:actor;size:500"`
}

func (SystemLog) TableName() string { return "system_log_errors" }

// DBWriter stores warn-and-above events in system_log_errors. When an insert
// fails the raw event goes to fallback instead.
type DBWriter struct {
	db       *gorm.DB
	fallback io.Writer
	now      func() time.Time
}

func NewDBWriter(db *gorm.DB, fallback io.Writer) *DBWriter {
	return &DBWriter{db: db, fallback: fallback, now: time.Now}
}

func (w *DBWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *DBWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel || level == zerolog.NoLevel {
		return len(p), nil
	}

	var ev map[string]any
	_ = json.Unmarshal(p, &ev)
	row := SystemLog{
		LoggedAt: w.now().UTC(),
		Level:    level.String(),
		Message:  truncate(eventText(ev, p), maxLogMessage),
		Module:   str(ev["module"]),
		Actor:    str(ev["actor"]),
	}
	if err := w.db.Create(&row).Error; err != nil {
		if w.fallback != nil {
			return w.fallback.Write(p)
		}
		return 0, err
	}
	return len(p), nil
}

// eventText is the message plus the error, which is what an operator reads
// first; the full event is used when it cannot be parsed.
func eventText(ev map[string]any, raw []byte) string {
	if ev == nil {
		return string(raw)
	}
	msg := str(ev[zerolog.MessageFieldName])
	if e := str(ev[zerolog.ErrorFieldName]); e != "" {
		if msg == "" {
			return e
		}
		return msg + ": " + e
	}
	return msg
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
