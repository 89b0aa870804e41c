package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.DocumentStore)
	assert.Equal(t, time.Second, cfg.QuietPeriod)
	assert.False(t, cfg.RelayRequireAuth)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindmap.yaml")
	writeFile(t, path, `
document_store: postgres
database_url: postgres://localhost/mindmap
quiet_period: 2s
log_level: debug
allowed_origins: [https://maps.example.com]
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("RELAY_REQUIRE_AUTH", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.DocumentStore)
	assert.Equal(t, 2*time.Second, cfg.QuietPeriod)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, []string{"https://maps.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.RelayRequireAuth)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown store", func(c *Config) { c.DocumentStore = "sqlite" }, false},
		{"postgres without url", func(c *Config) { c.DocumentStore = StorePostgres }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"production memory", func(c *Config) { c.Environment = "production"; c.JWTSecret = "s" }, false},
		{"production without key", func(c *Config) { c.Environment = "production"; c.DocumentStore = StoreDynamoDB }, false},
		{"production", func(c *Config) {
			c.Environment = "production"
			c.DocumentStore = StoreDynamoDB
			c.JWTSecret = "s"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}

func TestWatcher_ReloadsLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindmap.yaml")
	writeFile(t, path, "log_level: info\n")

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	current := Defaults()
	w, err := NewWatcher(path, current, level, zap.NewNop())
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	defer w.Stop()

	changed := make(chan *Config, 1)
	w.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	w.Start()

	writeFile(t, path, "log_level: debug\n")

	select {
	case c := <-changed:
		assert.Equal(t, "debug", c.LogLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}
