package calltrace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format is a configuration file format.
type Format string

// Supported configuration formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Sink kinds accepted in SinkConfig.Kind.
const (
	SinkStdout = "stdout"
	SinkStderr = "stderr"
	SinkFile   = "file"
	SinkNop    = "nop"
)

// ID generators accepted in Config.IDGenerator.
const (
	GeneratorUUID   = "uuid"
	GeneratorRandom = "random"
)

// Config is the file form of a tracer setup.
//
//	sink:
//	  kind: file
//	  file:
//	    path: /var/log/app/trace.log
//	    max_size_mb: 50
//	id_generator: uuid
//	id_pool_size: 64
//	workers: 2
//	queue_size: 256
type Config struct {
	Sink        SinkConfig `koanf:"sink"`
	IDGenerator string     `koanf:"id_generator"`
	IDPoolSize  int        `koanf:"id_pool_size"`
	Workers     int        `koanf:"workers"`
	QueueSize   int        `koanf:"queue_size"`
}

// SinkConfig selects and configures the Sink.
type SinkConfig struct {
	Kind     string     `koanf:"kind"`
	Encoding Encoding   `koanf:"encoding"`
	File     FileConfig `koanf:"file"`
}

// DefaultConfig returns a console sink on stdout and uuid ids.
func DefaultConfig() Config {
	return Config{
		Sink: SinkConfig{
			Kind:     SinkStdout,
			Encoding: EncodingConsole,
		},
		IDGenerator: GeneratorUUID,
		IDPoolSize:  -1,
	}
}

// LoadConfig reads a YAML or JSON config file, detected by extension.
// Fields missing from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrEmptyConfigPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return ConfigFromBytes(data, format)
}

// ConfigFromBytes parses config data in the given format.
// Empty data yields DefaultConfig.
func ConfigFromBytes(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return cfg, nil
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

// Options converts the config to tracer options. The returned close function
// releases the sink (a no-op for non-file sinks) and must be called after the
// tracer is closed.
func (c Config) Options() ([]Option, func() error, error) {
	closeFn := func() error { return nil }

	var sink Sink
	switch c.Sink.Kind {
	case "", SinkStdout:
		sink = NewWriterSink(os.Stdout, c.Sink.Encoding)
	case SinkStderr:
		sink = NewWriterSink(os.Stderr, c.Sink.Encoding)
	case SinkNop:
		sink = NopSink()
	case SinkFile:
		fileCfg := c.Sink.File
		if fileCfg.Encoding == "" {
			fileCfg.Encoding = c.Sink.Encoding
		}
		fs, err := NewFileSink(fileCfg)
		if err != nil {
			return nil, nil, err
		}
		sink = fs
		closeFn = fs.Close
	default:
		return nil, nil, fmt.Errorf("%w: sink %q", ErrInvalidConfig, c.Sink.Kind)
	}

	var gen IDGenerator
	switch c.IDGenerator {
	case "", GeneratorUUID:
		gen = UUIDPrefixID
	case GeneratorRandom:
		gen = RandomAlnumID
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("%w: id_generator %q", ErrInvalidConfig, c.IDGenerator)
	}

	opts := []Option{WithSink(sink), WithIDGenerator(gen)}
	if c.IDPoolSize >= 0 {
		opts = append(opts, WithIDPoolSize(c.IDPoolSize))
	}
	return opts, closeFn, nil
}

// NewFromConfig builds a Tracer from cfg, enabling the worker pool when
// Workers is set. Call the returned close function after tracer.Close.
func NewFromConfig(cfg Config, extra ...Option) (*Tracer, func() error, error) {
	opts, closeFn, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	t := New(append(opts, extra...)...)
	if cfg.Workers > 0 {
		queue := cfg.QueueSize
		if queue <= 0 {
			queue = cfg.Workers * 64
		}
		if err := t.EnableWorkerPool(cfg.Workers, queue); err != nil {
			t.Close()
			_ = closeFn()
			return nil, nil, err
		}
	}
	return t, closeFn, nil
}
