// Package config loads the typeimage configuration.
//
// Values come, in increasing precedence, from defaults, an optional YAML file,
// TYPEIMAGE_* environment variables and bound command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/maruel/typeimage/internal/autobackup"
	"github.com/maruel/typeimage/internal/backup"
)

// EnvPrefix prefixes environment overrides, e.g. TYPEIMAGE_AUTO_BACKUP_DEBOUNCE.
const EnvPrefix = "TYPEIMAGE"

// DefaultHTTPAddr is the listen address of the server.
const DefaultHTTPAddr = "localhost:8080"

// Keys.
const (
	KeyDataDir                = "data_dir"
	KeyNativeDir              = "native_dir"
	KeyPlatform               = "platform"
	KeyAutoBackupDebounce     = "auto_backup.debounce"
	KeyAutoBackupDocumentsDir = "auto_backup.documents_dir"
	KeyAutoBackupDownloadsDir = "auto_backup.downloads_dir"
	KeyAutoBackupHistory      = "auto_backup.history"
	KeyAutoBackupQuality      = "auto_backup.quality"
	KeyHTTPAddr               = "http.addr"
	KeyImportTimeout          = "import.timeout"
)

// Config is the whole configuration.
type Config struct {
	// DataDir holds the metadata tables and the transactional image database.
	DataDir string `mapstructure:"data_dir"`
	// NativeDir, when set, stores images as plain files there.
	NativeDir  string           `mapstructure:"native_dir"`
	Platform   string           `mapstructure:"platform"`
	AutoBackup AutoBackupConfig `mapstructure:"auto_backup"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Import     ImportConfig     `mapstructure:"import"`
}

// AutoBackupConfig configures the scheduler and the overwrite destination.
type AutoBackupConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	DocumentsDir string        `mapstructure:"documents_dir"`
	DownloadsDir string        `mapstructure:"downloads_dir"`
	// History commits every overwrite-in-place backup to a git repository.
	History bool `mapstructure:"history"`
	Quality int  `mapstructure:"quality"`
}

// HTTPConfig configures "typeimage serve".
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// ImportConfig configures flashcard imports.
type ImportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, defaultDataDir())
	v.SetDefault(KeyNativeDir, "")
	v.SetDefault(KeyPlatform, string(autobackup.PlatformAuto))
	v.SetDefault(KeyAutoBackupDebounce, autobackup.DefaultDebounce)
	home, _ := os.UserHomeDir()
	if home != "" {
		v.SetDefault(KeyAutoBackupDocumentsDir, filepath.Join(home, "Documents"))
		v.SetDefault(KeyAutoBackupDownloadsDir, filepath.Join(home, "Downloads"))
	} else {
		v.SetDefault(KeyAutoBackupDocumentsDir, "")
		v.SetDefault(KeyAutoBackupDownloadsDir, "")
	}
	v.SetDefault(KeyAutoBackupHistory, false)
	v.SetDefault(KeyAutoBackupQuality, backup.DefaultQuality)
	v.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	v.SetDefault(KeyImportTimeout, 30*time.Second)
}

func defaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "typeimage")
	}
	return ".typeimage"
}

// Load reads the configuration into v and decodes it.
//
// configFile is optional; when empty, config.yaml in the data directory is
// used if present. Flags must be bound to v before calling Load.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString(KeyDataDir))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if _, err := autobackup.ParsePlatform(c.Platform); err != nil {
		return err
	}
	if c.AutoBackup.Debounce <= 0 {
		return errors.New("auto_backup.debounce must be positive")
	}
	if c.AutoBackup.Quality < 1 || c.AutoBackup.Quality > 100 {
		return fmt.Errorf("auto_backup.quality must be within 1..100, got %d", c.AutoBackup.Quality)
	}
	if c.Import.Timeout <= 0 {
		return errors.New("import.timeout must be positive")
	}
	return nil
}

// ResolvedPlatform returns the concrete device class.
func (c *Config) ResolvedPlatform() autobackup.Platform {
	p, err := autobackup.ParsePlatform(c.Platform)
	if err != nil {
		p = autobackup.PlatformAuto
	}
	return p.Resolve(c.NativeDir != "")
}
