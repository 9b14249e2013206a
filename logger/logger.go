package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// LogLevel orders messages from chattiest to most severe.
type LogLevel int

const (
	TRACE LogLevel = iota // Timer ticks, notification fan-out, raw PDUs
	DEBUG                 // Characteristic reads/writes, event payloads
	INFO                  // Connections, subscriptions, advertising
	WARN                  // Dropped events, rejected writes
	ERROR                 // Transport failures
)

var (
	mu   sync.RWMutex
	base = newBase(os.Stdout)
)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case TRACE:
		return logrus.TraceLevel
	case DEBUG:
		return logrus.DebugLevel
	case INFO:
		return logrus.InfoLevel
	case WARN:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// SetLevel drops everything below level.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(level.logrus())
}

// GetLevel reports the level set by SetLevel.
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	switch base.GetLevel() {
	case logrus.TraceLevel:
		return TRACE
	case logrus.DebugLevel:
		return DEBUG
	case logrus.InfoLevel:
		return INFO
	case logrus.WarnLevel:
		return WARN
	}
	return ERROR
}

// SetOutput redirects all log output, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetJSON switches the output to logrus' JSON formatter.
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
}

// ParseLevel reads a level name case-insensitively; unknown names mean INFO.
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func log(level LogLevel, prefix, format string, args ...interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	lvl := level.logrus()
	if !l.IsLevelEnabled(lvl) {
		return
	}
	entry := logrus.NewEntry(l)
	if prefix != "" {
		entry = entry.WithField("prefix", prefix)
	}
	entry.Logf(lvl, format, args...)
}

// Trace logs at TRACE level under prefix.
func Trace(prefix, format string, args ...interface{}) {
	log(TRACE, prefix, format, args...)
}

// Debug logs at DEBUG level under prefix.
func Debug(prefix, format string, args ...interface{}) {
	log(DEBUG, prefix, format, args...)
}

// Info logs at INFO level under prefix.
func Info(prefix, format string, args ...interface{}) {
	log(INFO, prefix, format, args...)
}

// Warn logs at WARN level under prefix.
func Warn(prefix, format string, args ...interface{}) {
	log(WARN, prefix, format, args...)
}

// Error logs at ERROR level under prefix.
func Error(prefix, format string, args ...interface{}) {
	log(ERROR, prefix, format, args...)
}

var protoIndent = protojson.MarshalOptions{Multiline: true, Indent: "  "}

// ToJSON renders v as indented JSON for log output. Protobuf messages go
// through protojson.
func ToJSON(v interface{}) string {
	var (
		b   []byte
		err error
	)
	if msg, ok := v.(proto.Message); ok {
		b, err = protoIndent.Marshal(msg)
	} else {
		b, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Sprintf("<unrenderable %T: %v>", v, err)
	}
	return string(b)
}

// TraceJSON logs v as JSON under label, only computing it when TRACE is on.
func TraceJSON(prefix, label string, v interface{}) {
	if GetLevel() > TRACE {
		return
	}
	log(TRACE, prefix, "%s:\n%s", label, ToJSON(v))
}

// DebugJSON is TraceJSON at DEBUG.
func DebugJSON(prefix, label string, v interface{}) {
	if GetLevel() > DEBUG {
		return
	}
	log(DEBUG, prefix, "%s:\n%s", label, ToJSON(v))
}
