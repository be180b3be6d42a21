package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "strict", cfg.Export.Mode)
	assert.Equal(t, "all", cfg.Export.Scope)
	assert.True(t, cfg.Commerce.StrictReverseMatch)
	assert.Equal(t, 4, cfg.Media.Workers)
	assert.Equal(t, 30*time.Second, cfg.Media.Timeout)
	assert.Equal(t, 22, cfg.SFTP.Port)
	assert.Equal(t, "/inbound", cfg.SFTP.Dir)
	assert.True(t, cfg.SFTP.InsecureIgnoreHostKey)
	assert.False(t, cfg.SFTPConfigured())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("LMSMIGRATE_EXPORT_MODE", "discover_related")
	t.Setenv("LMSMIGRATE_MEDIA_TIMEOUT", "5s")
	t.Setenv("LMSMIGRATE_COMMERCE_STRICT_REVERSE_MATCH", "false")
	t.Setenv("SFTP_HOST", "sftp.test")
	t.Setenv("SFTP_PORT", "2222")
	t.Setenv("SFTP_USER", "sftp-user")
	t.Setenv("SFTP_PASS", "sftp-pass")
	t.Setenv("SFTP_INSECURE_IGNORE_HOSTKEY", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "discover_related", cfg.Export.Mode)
	assert.Equal(t, 5*time.Second, cfg.Media.Timeout)
	assert.False(t, cfg.Commerce.StrictReverseMatch)
	assert.Equal(t, "sftp.test", cfg.SFTP.Host)
	assert.Equal(t, 2222, cfg.SFTP.Port)
	assert.False(t, cfg.SFTP.InsecureIgnoreHostKey)
	assert.True(t, cfg.SFTPConfigured())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmsmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  db: /data/old.db
export:
  mode: discover_all
  scope: "7,9"
  compress: true
media:
  workers: 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/old.db", cfg.Source.DB)
	assert.Equal(t, "discover_all", cfg.Export.Mode)
	assert.Equal(t, "7,9", cfg.Export.Scope)
	assert.True(t, cfg.Export.Compress)
	assert.Equal(t, 8, cfg.Media.Workers)
	assert.Equal(t, "target.db", cfg.Target.DB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.Export.Mode = "greedy" }, true},
		{"bad scope", func(c *Config) { c.Export.Scope = "7,x" }, true},
		{"negative workers", func(c *Config) { c.Media.Workers = -1 }, true},
		{"port range", func(c *Config) { c.SFTP.Port = 70000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			cfg, err := LoadWithViper(v)
			require.NoError(t, err)
			tt.mutate(cfg)
			if tt.wantErr {
				err := cfg.Validate()
				require.Error(t, err)
				assert.Contains(t, fmt.Sprintf("%+v", err), "config.go", "validation errors carry a stack")
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
