// Package logging provides leveled, structured JSON logging on top of the
// standard library logger.
package logging

import (
	"encoding/json"
	"log"
	"time"
)

// Level of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one structured log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

var minLevel = LevelInfo

// SetLevel sets the minimum level that gets emitted.
func SetLevel(level Level) {
	minLevel = level
}

func priority(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func emit(level Level, message, errMsg string, fields map[string]interface{}) {
	if priority(level) < priority(minLevel) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Error:     errMsg,
		Context:   fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[%s] %s", level, message)
		return
	}
	log.Println(string(data))
}

// Debug logs a debug message.
func Debug(message string, fields map[string]interface{}) {
	emit(LevelDebug, message, "", fields)
}

// Info logs an informational message.
func Info(message string, fields map[string]interface{}) {
	emit(LevelInfo, message, "", fields)
}

// Warn logs a warning.
func Warn(message string, fields map[string]interface{}) {
	emit(LevelWarn, message, "", fields)
}

// Error logs an error.
func Error(message string, err error, fields map[string]interface{}) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	emit(LevelError, message, msg, fields)
}
