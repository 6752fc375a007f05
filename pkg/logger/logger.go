package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field aliases for zap fields
type Field = zapcore.Field

// Field constructors, re-exported so callers only import this package
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Uint64   = zap.Uint64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Time     = zap.Time
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
)

// nameWidth is the console column reserved for the logger name
const nameWidth = 15

// Logger is a wrapper around zap.Logger. Loggers derived with With or Named
// share the level of the logger they came from.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config represents logger configuration
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, console
	Output io.Writer // defaults to stdout
}

var levelNames = map[string]zapcore.Level{
	"":      zapcore.InfoLevel,
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel: "\033[1;37m", // bold white
	zapcore.InfoLevel:  "\033[1;36m", // bold cyan
	zapcore.WarnLevel:  "\033[1;33m", // bold yellow
	zapcore.ErrorLevel: "\033[1;31m", // bold red
}

func parseLevel(name string) (zapcore.Level, error) {
	level, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", name)
	}
	return level, nil
}

func colorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, ok := levelColors[level]
	if !ok {
		enc.AppendString(level.String())
		return
	}
	enc.AppendString(color + level.String() + "\033[0m")
}

// shortName prints the last dotted component of a logger name in a fixed-width column
func shortName(name string, enc zapcore.PrimitiveArrayEncoder) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	enc.AppendString(fmt.Sprintf("%-*.*s", nameWidth, nameWidth, name))
}

func newEncoder(format string, debug bool) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if debug {
		cfg.CallerKey = "caller"
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	switch format {
	case "json":
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		cfg.EncodeLevel = colorLevel
		cfg.EncodeName = shortName
		return zapcore.NewConsoleEncoder(cfg), nil
	}
	return nil, fmt.Errorf("unsupported log format: %s", format)
}

// New creates a logger. Caller information is only recorded at debug level.
func New(config Config) (*Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	debug := level == zapcore.DebugLevel

	encoder, err := newEncoder(config.Format, debug)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if config.Output != nil {
		out = config.Output
	}

	atomic := zap.NewAtomicLevelAt(level)
	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if debug {
		opts = append(opts, zap.AddCaller())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), atomic)
	return &Logger{Logger: zap.New(core, opts...), level: atomic}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(name string) error {
	level, err := parseLevel(name)
	if err != nil {
		return err
	}
	l.level.SetLevel(level)
	return nil
}

// With returns a logger with the given fields
func (l *Logger) With(fields ...zapcore.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

// Named returns a logger with the given name
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), level: l.level}
}

// WithRequestID returns a logger with the request ID field
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(zap.String("request_id", requestID))
}

// WithAircraft returns a logger scoped to one aircraft
func (l *Logger) WithAircraft(aircraftID string) *Logger {
	return l.With(zap.String("aircraft_id", aircraftID))
}

// WithClient returns a logger scoped to one websocket client
func (l *Logger) WithClient(clientID string) *Logger {
	return l.With(zap.String("client_id", clientID))
}
