// Package config holds the settings shared by the query, windowing and
// ingestion commands, read from a TOML file.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/carbocation/pfx"
	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen/alleles"
	"github.com/carbocation/popgen/stats"
	"github.com/carbocation/popgen/store"
)

type Config struct {
	StorePath   string `toml:"store_path"`
	ArtifactDir string `toml:"artifact_dir"`
	CacheDir    string `toml:"cache_dir"`

	// Highest allele value counted.
	MaxAllele int `toml:"max_allele"`

	// Longest stop-start accepted for range queries.
	MaxRangeBP int64 `toml:"max_range_bp"`

	WindowSize int64 `toml:"window_size"`
	WindowStep int64 `toml:"window_step"`

	// Variants per genotype chunk when ingesting.
	ChunkSize int `toml:"chunk_size"`

	LogLevel string `toml:"log_level"`

	// Heap limit in bytes; 0 disables the watchdog.
	MemoryLimit uint64 `toml:"memory_limit"`
}

func Default() Config {
	return Config{
		StorePath:   "store",
		ArtifactDir: "artifacts",
		MaxAllele:   alleles.DefaultMaxAllele,
		MaxRangeBP:  5_000_000,
		WindowSize:  stats.DefaultWindowSize,
		WindowStep:  stats.DefaultWindowStep,
		ChunkSize:   store.DefaultChunkSize,
		LogLevel:    "info",
	}
}

// Load reads path over the defaults. Keys that match no setting are an
// error.
func Load(path string) (Config, error) {
	c := Default()

	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return c, pfx.Err(err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return c, fmt.Errorf("%s: unknown settings %s", path, strings.Join(keys, ", "))
	}

	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.MaxAllele < 1:
		return fmt.Errorf("max_allele must be at least 1, got %d", c.MaxAllele)
	case c.MaxRangeBP <= 0:
		return fmt.Errorf("max_range_bp must be positive, got %d", c.MaxRangeBP)
	case c.WindowSize <= 0 || c.WindowStep <= 0:
		return fmt.Errorf("window_size and window_step must be positive, got %d and %d", c.WindowSize, c.WindowStep)
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Level is the parsed log level.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
