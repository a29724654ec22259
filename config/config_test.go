package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "popgen.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.MaxAllele)
	assert.Equal(t, int64(1000), c.WindowSize)
	assert.Equal(t, int64(100), c.WindowStep)
	assert.Equal(t, log.InfoLevel, c.Level())
}

func TestLoad(t *testing.T) {
	path := write(t, `
store_path = "gs://bucket/1kg"
cache_dir = "/tmp/popgen"
max_allele = 5
window_size = 2000
log_level = "debug"
memory_limit = 4294967296
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/1kg", c.StorePath)
	assert.Equal(t, "/tmp/popgen", c.CacheDir)
	assert.Equal(t, 5, c.MaxAllele)
	assert.Equal(t, int64(2000), c.WindowSize)
	assert.Equal(t, int64(100), c.WindowStep, "unset keys keep their defaults")
	assert.Equal(t, uint64(4294967296), c.MemoryLimit)
	assert.Equal(t, log.DebugLevel, c.Level())
}

func TestLoadRejects(t *testing.T) {
	for _, body := range []string{
		`max_alele = 5`,
		`max_allele = 0`,
		`window_step = -1`,
		`log_level = "loud"`,
		`store_path = `,
	} {
		_, err := Load(write(t, body))
		assert.Error(t, err, body)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
