package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
	defaultLoggerMu   sync.RWMutex
)

// GetDefaultLogger returns the process-wide logger.
// The level comes from PHONOGLYPH_LOG_LEVEL until SetLevel is called.
func GetDefaultLogger() zerolog.Logger {
	defaultLoggerOnce.Do(func() {
		level := ParseLevel(os.Getenv("PHONOGLYPH_LOG_LEVEL"))
		defaultLogger = NewLogger(consoleWriter(os.Stdout), level)
	})

	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// GetSubsystemLogger returns the default logger tagged with a component name.
func GetSubsystemLogger(component string) zerolog.Logger {
	return GetDefaultLogger().With().Str("component", component).Logger()
}

// SetLevel changes the level of the default logger.
func SetLevel(level zerolog.Level) {
	logger := GetDefaultLogger()

	defaultLoggerMu.Lock()
	defaultLogger = logger.Level(level)
	defaultLoggerMu.Unlock()
}

// NewLogger builds a timestamped logger writing to w.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a textual level to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

func consoleWriter(out io.Writer) io.Writer {
	if os.Getenv("PHONOGLYPH_LOG_JSON") != "" {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}
