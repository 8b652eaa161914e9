package calltrace

import (
	"io"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink receives one rendered line per trace event.
// Implementations must be safe for concurrent use.
type Sink interface {
	Info(line string)
	Error(line string)
}

type zapSink struct {
	log *zap.Logger
}

// NewZapSink writes lines through a zap logger.
// A nil logger uses zap.L().
func NewZapSink(log *zap.Logger) Sink {
	if log == nil {
		log = zap.L()
	}
	return &zapSink{log: log.WithOptions(zap.AddCallerSkip(2))}
}

func (s *zapSink) Info(line string)  { s.log.Info(line) }
func (s *zapSink) Error(line string) { s.log.Error(line) }

type logrSink struct {
	log logr.Logger
}

// NewLogrSink writes lines through a logr.Logger.
// Error lines are logged with a nil error; the line is the whole message.
func NewLogrSink(log logr.Logger) Sink {
	return &logrSink{log: log.WithCallDepth(2)}
}

func (s *logrSink) Info(line string)  { s.log.Info(line) }
func (s *logrSink) Error(line string) { s.log.Error(nil, line) }

// Encoding selects how a writer sink lays out each entry.
type Encoding string

// Supported encodings.
const (
	// EncodingPlain writes the bare line, nothing else.
	EncodingPlain Encoding = "plain"
	// EncodingConsole writes time, level and line separated by tabs.
	EncodingConsole Encoding = "console"
	// EncodingJSON writes one JSON object per line.
	EncodingJSON Encoding = "json"
)

// NewWriterSink builds a zap logger on w using enc and wraps it as a Sink.
// Unknown encodings fall back to EncodingConsole.
func NewWriterSink(w io.Writer, enc Encoding) Sink {
	return NewZapSink(newWriterLogger(w, enc))
}

func newWriterLogger(w io.Writer, enc Encoding) *zap.Logger {
	var encoder zapcore.Encoder
	switch enc {
	case EncodingPlain:
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey: "msg",
			LineEnding: zapcore.DefaultLineEnding,
		})
	case EncodingJSON:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.CallerKey = ""
		encoder = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zap.DebugLevel)
	return zap.New(core)
}

// FileConfig configures a rotating file sink.
type FileConfig struct {
	Path       string   `koanf:"path"`
	Encoding   Encoding `koanf:"encoding"`
	MaxSizeMB  int      `koanf:"max_size_mb"`
	MaxBackups int      `koanf:"max_backups"`
	MaxAgeDays int      `koanf:"max_age_days"`
	Compress   bool     `koanf:"compress"`
	LocalTime  bool     `koanf:"local_time"`
}

// Defaults for FileConfig fields left at zero.
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 7
	DefaultMaxAgeDays = 30
)

// FileSink is a Sink writing to a size-rotated file.
type FileSink struct {
	Sink
	rotator *lumberjack.Logger
	log     *zap.Logger
}

// NewFileSink opens a rotating file sink. The file is created on first write.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, ErrEmptySinkPath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultMaxAgeDays
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}
	log := newWriterLogger(rotator, cfg.Encoding)
	return &FileSink{
		Sink:    NewZapSink(log),
		rotator: rotator,
		log:     log,
	}, nil
}

// Rotate closes the current file and starts a new one.
func (f *FileSink) Rotate() error {
	return f.rotator.Rotate()
}

// Close flushes and closes the file.
func (f *FileSink) Close() error {
	_ = f.log.Sync()
	return f.rotator.Close()
}

// NopSink discards every line.
func NopSink() Sink {
	return NewZapSink(zap.NewNop())
}
