package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/blockmul/pkg/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "blockmul.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
matrix:
  rows: 8
  inner: 3
  cols: 2
  fill: random
  seed: 42
run:
  processes: 5
  transport: redis
  redis_url: redis://localhost:6379
  name: nightly
  timeout: 30s
logging:
  level: debug
  format: json
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 8, config.Matrix.Rows)
	assert.Equal(t, FillRandom, config.Matrix.Fill)
	assert.Equal(t, int64(42), config.Matrix.Seed)
	assert.Equal(t, 5, config.Run.Processes)
	assert.Equal(t, TransportRedis, config.Run.Transport)
	assert.Equal(t, 30*time.Second, config.Run.Timeout)
	assert.Equal(t, LauncherLocal, config.Run.Launcher)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/blockmul.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
matrix:
  - this is invalid
    yaml syntax
`)

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
matrix:
  rows: 2
  inner: 2
  cols: 2
run:
  processes: 3
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, FillIndexSum, config.Matrix.Fill)
	assert.Equal(t, TransportMemory, config.Run.Transport)
	assert.Equal(t, LauncherLocal, config.Run.Launcher)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unsupported version", func(c *Config) { c.Version = "2.0" }, "unsupported version"},
		{"bad fill", func(c *Config) { c.Matrix.Fill = "ones" }, "invalid matrix.fill"},
		{"negative rows", func(c *Config) { c.Matrix.Rows = -1 }, "dimensions must be >= 0"},
		{"explicit without data", func(c *Config) { c.Matrix.Fill = FillExplicit }, "requires matrix.left and matrix.right"},
		{"data without explicit", func(c *Config) { c.Matrix.Left = [][]float64{{1}} }, "only allowed with fill"},
		{"ragged explicit", func(c *Config) {
			c.Matrix.Fill = FillExplicit
			c.Matrix.Left = [][]float64{{1, 2}, {3}}
			c.Matrix.Right = [][]float64{{1}, {2}}
		}, "matrix.left"},
		{"zero processes", func(c *Config) { c.Run.Processes = 0 }, "run.processes must be >= 1"},
		{"bad transport", func(c *Config) { c.Run.Transport = "mpi" }, "invalid run.transport"},
		{"bad launcher", func(c *Config) { c.Run.Launcher = "k8s" }, "invalid run.launcher"},
		{"negative timeout", func(c *Config) { c.Run.Timeout = -time.Second }, "run.timeout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 4, c.Run.Processes)

	left, right, err := c.Matrix.Operands()
	require.NoError(t, err)
	assert.True(t, matrix.IndexSum(5, 5).Equal(left))
	assert.True(t, matrix.IndexSum(5, 5).Equal(right))
}

func TestSingleProcessPassesValidation(t *testing.T) {
	c := Default()
	c.Run.Processes = 1
	assert.NoError(t, c.Validate())
}

func TestDockerLauncherDefaultsImage(t *testing.T) {
	c := Default()
	c.Run.Launcher = LauncherDocker
	require.NoError(t, c.Validate())
	assert.Equal(t, "blockmul:latest", c.Run.Image)
}

func TestOperands(t *testing.T) {
	t.Run("explicit derives dimensions", func(t *testing.T) {
		c := Default()
		c.Matrix = MatrixConfig{
			Fill:  FillExplicit,
			Left:  [][]float64{{1, 2, 3}},
			Right: [][]float64{{1}, {2}, {3}},
		}
		require.NoError(t, c.Validate())
		assert.Equal(t, 1, c.Matrix.Rows)
		assert.Equal(t, 3, c.Matrix.Inner)
		assert.Equal(t, 1, c.Matrix.Cols)

		left, right, err := c.Matrix.Operands()
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, left.Data())
		assert.Equal(t, 3, right.Rows())
	})

	t.Run("explicit mismatch is left to the coordinator", func(t *testing.T) {
		c := Default()
		c.Matrix = MatrixConfig{
			Fill:  FillExplicit,
			Left:  [][]float64{{1, 2}},
			Right: [][]float64{{1}, {2}, {3}},
		}
		assert.NoError(t, c.Validate())
	})

	t.Run("random is reproducible", func(t *testing.T) {
		m := MatrixConfig{Rows: 3, Inner: 2, Cols: 4, Fill: FillRandom, Seed: 9}
		a1, b1, err := m.Operands()
		require.NoError(t, err)
		a2, b2, err := m.Operands()
		require.NoError(t, err)
		assert.True(t, a1.Equal(a2))
		assert.True(t, b1.Equal(b2))
		assert.Equal(t, 4, b1.Cols())
	})
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("falls back to default", func(t *testing.T) {
		chdir(t, t.TempDir())
		c, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, Default(), c)
	})

	t.Run("picks up blockmul.yml in working directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("version: \"1.0\"\nrun:\n  processes: 9\n"), 0644))
		chdir(t, dir)

		c, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, 9, c.Run.Processes)
	})
}

func TestToLogging(t *testing.T) {
	l := LoggingConfig{Level: "warn", Format: "json", File: "/tmp/x.log"}
	got := l.ToLogging()
	assert.Equal(t, "warn", got.Level)
	assert.Equal(t, "/tmp/x.log", got.File)
	assert.Positive(t, got.MaxSize)
}
