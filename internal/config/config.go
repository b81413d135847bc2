package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dyluth/blockmul/internal/logging"
	"github.com/dyluth/blockmul/pkg/matrix"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file name looked up in the working directory.
const DefaultFile = "blockmul.yml"

// Fill modes for generating operands
const (
	FillIndexSum = "index-sum"
	FillRandom   = "random"
	FillExplicit = "explicit"
)

// Transports
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
)

// Launchers
const (
	LauncherLocal  = "local"
	LauncherDocker = "docker"
)

// Config represents the top-level blockmul.yml configuration
type Config struct {
	Version string        `yaml:"version"`
	Matrix  MatrixConfig  `yaml:"matrix"`
	Run     RunConfig     `yaml:"run"`
	Logging LoggingConfig `yaml:"logging"`
}

// MatrixConfig describes the operands: A is Rows×Inner, B is Inner×Cols
type MatrixConfig struct {
	Rows  int         `yaml:"rows"`
	Inner int         `yaml:"inner"`
	Cols  int         `yaml:"cols"`
	Fill  string      `yaml:"fill"`            // index-sum, random or explicit
	Seed  int64       `yaml:"seed,omitempty"`  // random only
	Left  [][]float64 `yaml:"left,omitempty"`  // explicit only
	Right [][]float64 `yaml:"right,omitempty"` // explicit only
}

// RunConfig describes the world the run executes in
type RunConfig struct {
	Processes  int           `yaml:"processes"` // Total ranks including the coordinator
	Transport  string        `yaml:"transport"`
	RedisURL   string        `yaml:"redis_url,omitempty"`
	Name       string        `yaml:"name,omitempty"`    // Run namespace in Redis, generated when empty
	Timeout    time.Duration `yaml:"timeout,omitempty"` // 0 = wait forever
	Launcher   string        `yaml:"launcher,omitempty"`
	Image      string        `yaml:"image,omitempty"`       // docker launcher only
	HealthAddr string        `yaml:"health_addr,omitempty"` // coordinator /healthz, empty = disabled
	Precise    bool          `yaml:"precise,omitempty"`     // print entries with %g
}

// LoggingConfig selects structured log output
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// Default returns the configuration of the reference run: two 5×5 index-sum
// operands on four processes.
func Default() *Config {
	return &Config{
		Version: "1.0",
		Matrix:  MatrixConfig{Rows: 5, Inner: 5, Cols: 5, Fill: FillIndexSum},
		Run:     RunConfig{Processes: 4, Transport: TransportMemory, Launcher: LauncherLocal},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Validate performs strict validation on the configuration and applies defaults
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	if err := c.Matrix.Validate(); err != nil {
		return err
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Validate checks the operand description and fills in derived dimensions
func (m *MatrixConfig) Validate() error {
	if m.Fill == "" {
		m.Fill = FillIndexSum
	}

	switch m.Fill {
	case FillIndexSum, FillRandom:
		if len(m.Left) > 0 || len(m.Right) > 0 {
			return fmt.Errorf("matrix.left and matrix.right are only allowed with fill '%s'", FillExplicit)
		}
	case FillExplicit:
		if len(m.Left) == 0 || len(m.Right) == 0 {
			return fmt.Errorf("fill '%s' requires matrix.left and matrix.right", FillExplicit)
		}
		left, err := matrix.FromRows(m.Left)
		if err != nil {
			return fmt.Errorf("matrix.left: %w", err)
		}
		right, err := matrix.FromRows(m.Right)
		if err != nil {
			return fmt.Errorf("matrix.right: %w", err)
		}
		// Inner dimension agreement is checked by the coordinator
		m.Rows, m.Inner, m.Cols = left.Rows(), left.Cols(), right.Cols()
	default:
		return fmt.Errorf("invalid matrix.fill: %s (must be '%s', '%s' or '%s')", m.Fill, FillIndexSum, FillRandom, FillExplicit)
	}

	if m.Rows < 0 || m.Inner < 0 || m.Cols < 0 {
		return fmt.Errorf("matrix dimensions must be >= 0, got %dx%d and %dx%d", m.Rows, m.Inner, m.Inner, m.Cols)
	}
	return nil
}

// Operands builds the left and right matrices described by the configuration
func (m *MatrixConfig) Operands() (left, right *matrix.Dense, err error) {
	switch m.Fill {
	case FillRandom:
		return matrix.Random(m.Rows, m.Inner, m.Seed), matrix.Random(m.Inner, m.Cols, m.Seed+1), nil
	case FillExplicit:
		if left, err = matrix.FromRows(m.Left); err != nil {
			return nil, nil, fmt.Errorf("matrix.left: %w", err)
		}
		if right, err = matrix.FromRows(m.Right); err != nil {
			return nil, nil, fmt.Errorf("matrix.right: %w", err)
		}
		return left, right, nil
	default:
		return matrix.IndexSum(m.Rows, m.Inner), matrix.IndexSum(m.Inner, m.Cols), nil
	}
}

// Validate checks the run section and applies defaults
func (r *RunConfig) Validate() error {
	// Fewer than two processes is caught when the run starts, so that it fails
	// with the same diagnostic however the count was supplied
	if r.Processes < 1 {
		return fmt.Errorf("run.processes must be >= 1, got %d", r.Processes)
	}

	if r.Transport == "" {
		r.Transport = TransportMemory
	}
	if r.Transport != TransportMemory && r.Transport != TransportRedis {
		return fmt.Errorf("invalid run.transport: %s (must be '%s' or '%s')", r.Transport, TransportMemory, TransportRedis)
	}

	if r.Launcher == "" {
		r.Launcher = LauncherLocal
	}
	if r.Launcher != LauncherLocal && r.Launcher != LauncherDocker {
		return fmt.Errorf("invalid run.launcher: %s (must be '%s' or '%s')", r.Launcher, LauncherLocal, LauncherDocker)
	}
	if r.Launcher == LauncherDocker && r.Image == "" {
		r.Image = "blockmul:latest"
	}

	if r.Timeout < 0 {
		return fmt.Errorf("run.timeout must be >= 0, got %s", r.Timeout)
	}
	return nil
}

// Validate checks the logging section and applies defaults
func (l *LoggingConfig) Validate() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "console"
	}
	if _, err := logging.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if l.Format != "console" && l.Format != "json" {
		return fmt.Errorf("invalid logging.format: %s (must be 'console' or 'json')", l.Format)
	}
	return nil
}

// ToLogging converts the section to a logging.Config
func (l *LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// Load reads and validates blockmul.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path if given. With an empty path it loads blockmul.yml
// from the working directory when present, and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return Load(DefaultFile)
	}
	return Default(), nil
}
