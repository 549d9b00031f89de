// Package logging wraps zerolog with the category-gated debug helpers
// this module's components expect (RTP, NAL, track, signalling, WebRTC
// state) and a package-level default logger.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog's levels under names the rest of this module uses.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category gates verbose, high-volume debug output that is off by default.
type Category string

const (
	CategoryRTP       Category = "rtp"
	CategoryNAL       Category = "nal"
	CategoryTrack     Category = "track"
	CategorySignaling Category = "signaling"
	CategoryWebRTC    Category = "webrtc"
	CategoryAll       Category = "all"
)

// Format selects the zerolog writer: structured JSON or human console output.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config controls how New builds a Logger.
type Config struct {
	Level      Level
	Format     Format
	OutputFile string

	mu       sync.RWMutex
	enabled  map[Category]bool
}

func NewConfig() *Config {
	return &Config{
		Level:   LevelInfo,
		Format:  FormatConsole,
		enabled: make(map[Category]bool),
	}
}

func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO", "":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", &InvalidValueError{Field: "level", Value: s}
	}
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableCategory turns on a debug category. CategoryAll enables every category.
func (c *Config) EnableCategory(cat Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cat == CategoryAll {
		c.enabled[CategoryRTP] = true
		c.enabled[CategoryNAL] = true
		c.enabled[CategoryTrack] = true
		c.enabled[CategorySignaling] = true
		c.enabled[CategoryWebRTC] = true
		return
	}
	c.enabled[cat] = true
}

func (c *Config) IsCategoryEnabled(cat Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled[cat]
}

// Logger wraps a zerolog.Logger scoped to one component, with
// category-gated debug helpers layered on top.
type Logger struct {
	zl     zerolog.Logger
	cfg    *Config
	file   *os.File
	compon string
}

// New builds a root Logger for the given component name.
func New(component string, cfg *Config) (*Logger, error) {
	var w io.Writer = os.Stderr
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		w = f
		file = f
	} else if cfg.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(w).
		Level(cfg.Level.zerologLevel()).
		With().
		Timestamp().
		Str("component", component).
		Logger()

	return &Logger{zl: zl, cfg: cfg, file: file, compon: component}, nil
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger(), cfg: l.cfg, file: l.file, compon: l.compon}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(err error, msg string, fields map[string]any) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.log(ev, msg, fields)
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// DebugCategory logs at debug level only if cat is enabled on this logger's config.
func (l *Logger) DebugCategory(cat Category, msg string, fields map[string]any) {
	if !l.cfg.IsCategoryEnabled(cat) {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["category"] = string(cat)
	l.Debug(msg, fields)
}

func (l *Logger) DebugRTPPacket(seq uint16, timestamp uint32, payloadType uint8, payloadSize int) {
	l.DebugCategory(CategoryRTP, "rtp packet", map[string]any{
		"sequence": seq, "timestamp": timestamp, "payload_type": payloadType, "payload_size": payloadSize,
	})
}

func (l *Logger) DebugNALUnit(naluType uint8, size int, fragmented bool) {
	l.DebugCategory(CategoryNAL, "nal unit", map[string]any{
		"type": naluType, "type_name": nalUnitTypeName(naluType), "size": size, "fragmented": fragmented,
	})
}

func nalUnitTypeName(t uint8) string {
	switch t {
	case 1:
		return "non-idr-slice"
	case 5:
		return "idr-slice"
	case 6:
		return "sei"
	case 7:
		return "sps"
	case 8:
		return "pps"
	case 9:
		return "aud"
	case 24:
		return "stap-a"
	case 28:
		return "fu-a"
	default:
		return "unknown"
	}
}

// InvalidValueError is returned by the Parse* helpers.
type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return "logging: invalid " + e.Field + ": " + e.Value
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns a lazily-initialized root logger for components that
// don't carry their own (tests, quick scripts).
func Default() *Logger {
	defaultOnce.Do(func() {
		l, err := New("default", NewConfig())
		if err != nil {
			l = &Logger{zl: zerolog.New(os.Stderr), cfg: NewConfig()}
		}
		defaultLogger = l
	})
	return defaultLogger
}
