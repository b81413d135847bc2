package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read by rank processes
const (
	EnvRank     = "BLOCKMUL_RANK"
	EnvSize     = "BLOCKMUL_SIZE"
	EnvRun      = "BLOCKMUL_RUN"
	EnvRedisURL = "REDIS_URL"
	EnvConfig   = "BLOCKMUL_CONFIG"
)

// RankEnv is a rank process's identity, usually set by the launcher.
type RankEnv struct {
	Rank       int
	Size       int
	Run        string
	RedisURL   string
	ConfigPath string // optional, shared by all ranks
}

// LoadRankEnv reads the rank identity from the environment. Variables that are
// unset leave the corresponding field of defaults untouched, so command-line
// flags can supply them instead.
func LoadRankEnv(defaults RankEnv) (*RankEnv, error) {
	env := defaults

	if v := os.Getenv(EnvRank); v != "" {
		rank, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", EnvRank, err)
		}
		env.Rank = rank
	}
	if v := os.Getenv(EnvSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", EnvSize, err)
		}
		env.Size = size
	}
	if v := os.Getenv(EnvRun); v != "" {
		env.Run = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		env.RedisURL = v
	}
	if v := os.Getenv(EnvConfig); v != "" {
		env.ConfigPath = v
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks that the identity is complete. A size below two is left to
// the coordinator, which reports it with the standard diagnostic.
func (e *RankEnv) Validate() error {
	if e.Size < 1 {
		return fmt.Errorf("world size must be >= 1 (set --size or %s), got %d", EnvSize, e.Size)
	}
	if e.Rank < 0 || e.Rank >= e.Size {
		return fmt.Errorf("rank %d is outside a world of %d (set --rank or %s)", e.Rank, e.Size, EnvRank)
	}
	if e.Run == "" {
		return fmt.Errorf("run name is required (set --run or %s)", EnvRun)
	}
	if e.RedisURL == "" {
		return fmt.Errorf("redis URL is required (set --redis-url or %s)", EnvRedisURL)
	}
	return nil
}

// Environ returns the variables that reproduce this identity in a child process.
func (e *RankEnv) Environ() []string {
	env := []string{
		fmt.Sprintf("%s=%d", EnvRank, e.Rank),
		fmt.Sprintf("%s=%d", EnvSize, e.Size),
		fmt.Sprintf("%s=%s", EnvRun, e.Run),
		fmt.Sprintf("%s=%s", EnvRedisURL, e.RedisURL),
	}
	if e.ConfigPath != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvConfig, e.ConfigPath))
	}
	return env
}
