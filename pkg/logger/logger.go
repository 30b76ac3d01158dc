// Package logger provides leveled, file-backed logging for the session
// layer. Log output never goes to the terminal: the CLI surface belongs to
// the conversation, diagnostics belong to the log file.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Level represents log levels.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes tab-separated lines: timestamp, level, scope, caller,
// message, optional JSON context.
type Logger struct {
	Level   Level
	Writer  io.Writer
	Service string

	mu sync.Mutex
}

var global *Logger

// Init sets up the global logger. If the log file cannot be created the
// logger falls back to stderr so diagnostics are never silently lost.
func Init(logPath string, level Level, serviceName string) error {
	w := io.Writer(os.Stderr)
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory %s: %v\n", dir, err)
			global = &Logger{Level: level, Writer: w, Service: serviceName}
			return nil
		}
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open log file %s: %v\n", logPath, err)
		global = &Logger{Level: level, Writer: w, Service: serviceName}
		return nil
	}
	global = &Logger{Level: level, Writer: f, Service: serviceName}
	return nil
}

func (l *Logger) log(level Level, scope, msg string, ctx map[string]interface{}) {
	if level < l.Level {
		return
	}

	caller := "unknown:0"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	if l.Service != "" {
		if ctx == nil {
			ctx = make(map[string]interface{})
		}
		ctx["service"] = l.Service
	}

	line := fmt.Sprintf("[%s]\t[%s]\t[%s]\t[%s]\t%s",
		time.Now().Format("2006-01-02 15:04:05"), level, scope, caller, msg)
	if len(ctx) > 0 {
		if data, err := json.Marshal(ctx); err == nil {
			line += "\t" + string(data)
		}
	}

	l.mu.Lock()
	fmt.Fprintln(l.Writer, line)
	l.mu.Unlock()
}

// Debug logs at DEBUG level with an optional context map.
func Debug(scope, msg string, args ...map[string]interface{}) {
	if global == nil {
		return
	}
	global.log(DEBUG, scope, msg, firstCtx(args))
}

// Info logs at INFO level with an optional context map.
func Info(scope, msg string, args ...map[string]interface{}) {
	if global == nil {
		return
	}
	global.log(INFO, scope, msg, firstCtx(args))
}

// Warn logs at WARN level with an optional context map.
func Warn(scope, msg string, args ...map[string]interface{}) {
	if global == nil {
		return
	}
	global.log(WARN, scope, msg, firstCtx(args))
}

// Error logs at ERROR level with an optional context map.
func Error(scope, msg string, args ...map[string]interface{}) {
	if global == nil {
		return
	}
	global.log(ERROR, scope, msg, firstCtx(args))
}

func firstCtx(args []map[string]interface{}) map[string]interface{} {
	if len(args) > 0 {
		return args[0]
	}
	return nil
}
