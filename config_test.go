package calltrace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
sink:
  kind: nop
id_generator: random
id_pool_size: 0
workers: 2
queue_size: 8
`

func TestConfigFromBytesYAML(t *testing.T) {
	cfg, err := ConfigFromBytes([]byte(yamlConfig), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, SinkNop, cfg.Sink.Kind)
	assert.Equal(t, EncodingConsole, cfg.Sink.Encoding, "unset fields keep defaults")
	assert.Equal(t, GeneratorRandom, cfg.IDGenerator)
	assert.Equal(t, 0, cfg.IDPoolSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 8, cfg.QueueSize)
}

func TestConfigFromBytesJSON(t *testing.T) {
	data := []byte(`{"sink":{"kind":"file","encoding":"json","file":{"path":"/tmp/x.log","max_size_mb":5}}}`)
	cfg, err := ConfigFromBytes(data, FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, SinkFile, cfg.Sink.Kind)
	assert.Equal(t, EncodingJSON, cfg.Sink.Encoding)
	assert.Equal(t, "/tmp/x.log", cfg.Sink.File.Path)
	assert.Equal(t, 5, cfg.Sink.File.MaxSizeMB)
	assert.Equal(t, GeneratorUUID, cfg.IDGenerator)
}

func TestConfigFromBytesEmpty(t *testing.T) {
	cfg, err := ConfigFromBytes(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigFromBytesErrors(t *testing.T) {
	_, err := ConfigFromBytes([]byte("a: b"), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ConfigFromBytes([]byte("{not json"), FormatJSON)
	assert.ErrorIs(t, err, ErrLoadConfig)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "trace.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, SinkNop, cfg.Sink.Kind)

	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrEmptyConfigPath)

	_, err = LoadConfig(filepath.Join(dir, "trace.toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrLoadConfig)
}

func TestConfigOptionsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink.Kind = "kafka"
	_, _, err := cfg.Options()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.IDGenerator = "snowflake"
	_, _, err = cfg.Options()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Sink.Kind = SinkFile
	_, _, err = cfg.Options()
	assert.ErrorIs(t, err, ErrEmptySinkPath)
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := ConfigFromBytes([]byte(yamlConfig), FormatYAML)
	require.NoError(t, err)

	tracer, closeSink, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, closeSink()) }()
	defer tracer.Close()

	_, status := tracer.Begin(context.Background(), "configured")
	assert.Len(t, status.TraceID().ID(), idLength)
	require.NoError(t, tracer.End(status))
	assert.Error(t, tracer.EnableWorkerPool(1, 1), "workers from config already enabled")
}

func TestNewFromConfigFileSink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink.Kind = SinkFile
	cfg.Sink.Encoding = EncodingPlain
	cfg.Sink.File.Path = filepath.Join(t.TempDir(), "out.log")
	cfg.IDPoolSize = 0

	tracer, closeSink, err := NewFromConfig(cfg)
	require.NoError(t, err)

	require.NoError(t, tracer.Trace(context.Background(), "to-file", func(context.Context) error { return nil }))
	tracer.Close()
	require.NoError(t, closeSink())

	data, err := os.ReadFile(cfg.Sink.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to-file time=")
}
