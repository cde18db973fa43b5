// Package config loads the optional YAML configuration file a
// pagestore deployment can supply, mirroring the teacher's
// ListenConfig shape but for an embedded, single-process database
// instead of a TCP listener.
package config

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/pagestore/pagestore"
	"github.com/pagestore/pagestore/internal/storage"
)

// Config is the on-disk shape of a pagestore config file.
type Config struct {
	DataFile      string       `yaml:"data_file"`
	PageSize      int          `yaml:"page_size"`
	PageCacheSize int          `yaml:"page_cache_size"`
	JournalMode   string       `yaml:"journal_mode"` // "wal" or "rollback"
	BusyTimeoutMS int          `yaml:"busy_timeout_ms"`
	LogLevel      logrus.Level `yaml:"log_level"`
}

// Default returns the zero-value-safe defaults a missing config file
// implies: a 4096-byte page, WAL journaling, and warn-level logging.
func Default() Config {
	return Config{
		DataFile:      "",
		PageSize:      4096,
		PageCacheSize: 256,
		JournalMode:   "wal",
		LogLevel:      logrus.WarnLevel,
	}
}

// Load reads and parses a YAML config file at path. A missing file is
// not an error; Default() is returned instead, matching the common
// case of running against an unconfigured database.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options translates the parsed config into pagestore.Options.
func (c Config) Options(log *logrus.Logger) pagestore.Options {
	mode := storage.JournalModeWAL
	if c.JournalMode == "rollback" {
		mode = storage.JournalModeRollback
	}
	return pagestore.Options{
		PageSize:      c.PageSize,
		Mode:          mode,
		PageCacheSize: c.PageCacheSize,
		Logger:        log,
	}
}

// Open opens the database named by c.DataFile (or an in-process
// database when it's empty) using this config's options.
func (c Config) Open(log *logrus.Logger) (*pagestore.Database, error) {
	opts := c.Options(log)
	if c.DataFile == "" {
		return pagestore.OpenMemory(nil, opts)
	}
	return pagestore.Open(c.DataFile, opts)
}
