// Package config loads lms-migrate settings from defaults, an optional
// config file and LMSMIGRATE_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
)

const EnvPrefix = "LMSMIGRATE"

type Config struct {
	Source   DBConfig       `mapstructure:"source"`
	Target   DBConfig       `mapstructure:"target"`
	Export   ExportConfig   `mapstructure:"export"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Commerce CommerceConfig `mapstructure:"commerce"`
	Media    MediaConfig    `mapstructure:"media"`
	Log      LogConfig      `mapstructure:"log"`
	SFTP     SFTPConfig     `mapstructure:"sftp"`
}

type DBConfig struct {
	DB string `mapstructure:"db"`
}

type ExportConfig struct {
	Mode     string `mapstructure:"mode"`
	Scope    string `mapstructure:"scope"`
	Compress bool   `mapstructure:"compress"`
	// Output is the snapshot path; ".br" is appended when compressing.
	Output string `mapstructure:"output"`
}

type PathsConfig struct {
	LogDir    string `mapstructure:"log_dir"`
	ReportDir string `mapstructure:"report_dir"`
	MediaDir  string `mapstructure:"media_dir"`
}

type CommerceConfig struct {
	StrictReverseMatch bool `mapstructure:"strict_reverse_match"`
}

type MediaConfig struct {
	Workers  int           `mapstructure:"workers"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type SFTPConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	User                  string `mapstructure:"user"`
	Pass                  string `mapstructure:"pass"`
	Dir                   string `mapstructure:"dir"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_hostkey"`
	KnownHosts            string `mapstructure:"known_hosts"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.db", "source.db")
	v.SetDefault("target.db", "target.db")

	v.SetDefault("export.mode", string(domain.ModeStrict))
	v.SetDefault("export.scope", "all")
	v.SetDefault("export.compress", false)
	v.SetDefault("export.output", "out/export.json")

	v.SetDefault("paths.log_dir", "out/logs")
	v.SetDefault("paths.report_dir", "out/reports")
	v.SetDefault("paths.media_dir", "out/media")

	v.SetDefault("commerce.strict_reverse_match", true)

	v.SetDefault("media.workers", 4)
	v.SetDefault("media.timeout", 30*time.Second)
	v.SetDefault("media.max_bytes", 50<<20)

	v.SetDefault("log.mode", "production")

	v.SetDefault("sftp.port", 22)
	v.SetDefault("sftp.dir", "/inbound")
	v.SetDefault("sftp.insecure_ignore_hostkey", true)
}

// BindLegacyEnv keeps the SFTP_* variables of existing deployments working.
func BindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("sftp.host", EnvPrefix+"_SFTP_HOST", "SFTP_HOST")
	_ = v.BindEnv("sftp.port", EnvPrefix+"_SFTP_PORT", "SFTP_PORT")
	_ = v.BindEnv("sftp.user", EnvPrefix+"_SFTP_USER", "SFTP_USER")
	_ = v.BindEnv("sftp.pass", EnvPrefix+"_SFTP_PASS", "SFTP_PASS")
	_ = v.BindEnv("sftp.dir", EnvPrefix+"_SFTP_DIR", "SFTP_DIR")
	_ = v.BindEnv("sftp.insecure_ignore_hostkey", EnvPrefix+"_SFTP_INSECURE_IGNORE_HOSTKEY", "SFTP_INSECURE_IGNORE_HOSTKEY")
	_ = v.BindEnv("sftp.known_hosts", EnvPrefix+"_SFTP_KNOWN_HOSTS", "SFTP_KNOWN_HOSTS")
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile, when set, is read on top of the defaults.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindLegacyEnv(v)
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
	}
	return v, nil
}

// Load builds the configuration; see NewViper.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := domain.ParseExportMode(c.Export.Mode); err != nil {
		return err
	}
	if _, err := domain.ParseScope(c.Export.Scope); err != nil {
		return err
	}
	if c.Media.Workers < 0 {
		return errors.Newf("media.workers must be >= 0, got %d", c.Media.Workers)
	}
	if c.Media.Timeout < 0 {
		return errors.Newf("media.timeout must be >= 0, got %s", c.Media.Timeout)
	}
	if c.SFTP.Port < 0 || c.SFTP.Port > 65535 {
		return errors.Newf("sftp.port out of range: %d", c.SFTP.Port)
	}
	return nil
}

// SFTPConfigured reports whether enough is set to attempt an upload.
func (c *Config) SFTPConfigured() bool {
	return c.SFTP.Host != "" && c.SFTP.User != "" && c.SFTP.Pass != ""
}
