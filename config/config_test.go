package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discos/statuskit/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "client.json", `{
		"schema_root": "/etc/statuskit/schemas",
		"telescope": "SRT",
		"nats_url": "nats://broker:4222",
		"topics": ["antenna", "weather"],
		"handshake_timeout": "2s"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/statuskit/schemas", cfg.SchemaRoot)
	assert.Equal(t, "SRT", cfg.Telescope)
	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, []string{"antenna", "weather"}, cfg.Topics)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout.Std())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "client.yaml", `
schema_root: /etc/statuskit/schemas
telescope: medicina
nats_url: nats://broker:4222
topics:
  - antenna
handshake_timeout: 750ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "medicina", cfg.Telescope)
	assert.Equal(t, []string{"antenna"}, cfg.Topics)
	assert.Equal(t, 750*time.Millisecond, cfg.HandshakeTimeout.Std())
}

func TestLoad_DefaultsFillUnsetFields(t *testing.T) {
	path := writeFile(t, "client.yaml", `
schema_root: /srv/schemas
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Default().NATSURL, cfg.NATSURL)
	assert.Equal(t, Default().HandshakeTimeout, cfg.HandshakeTimeout)
	assert.Empty(t, cfg.Topics)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load("does-not-exist.yaml")
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "client.toml", `schema_root = "x"`)
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("malformed content", func(t *testing.T) {
		path := writeFile(t, "client.json", `{`)
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("bad duration", func(t *testing.T) {
		path := writeFile(t, "client.yaml", "handshake_timeout: soon")
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"empty schema root", func(c *Config) { c.SchemaRoot = "" }, true},
		{"empty nats url", func(c *Config) { c.NATSURL = "" }, true},
		{"negative handshake timeout", func(c *Config) { c.HandshakeTimeout = -1 }, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(&cfg)
			err := cfg.Validate()
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
