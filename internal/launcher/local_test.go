package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dyluth/blockmul/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	envWantHelper = "BLOCKMUL_WANT_HELPER_PROCESS"
	envFailRank   = "BLOCKMUL_HELPER_FAIL_RANK"
	envHangRank   = "BLOCKMUL_HELPER_HANG_RANK"
)

// TestHelperProcess stands in for the blockmul binary when the local launcher
// re-executes the test binary. It is a no-op in a normal test run.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(envWantHelper) != "1" {
		return
	}

	rank := os.Getenv(config.EnvRank)
	switch rank {
	case os.Getenv(envFailRank):
		fmt.Fprintf(os.Stderr, "rank %s exploded\n", rank)
		os.Exit(3)
	case os.Getenv(envHangRank):
		time.Sleep(time.Minute)
	case "0":
		fmt.Printf("result of %s over %s ranks\n", os.Getenv(config.EnvRun), os.Getenv(config.EnvSize))
	}
	os.Exit(0)
}

func helperLauncher(stdout, stderr *bytes.Buffer) *Local {
	return &Local{
		Executable: os.Args[0],
		Prefix:     []string{"-test.run=^TestHelperProcess$", "--"},
		Stdout:     stdout,
		Stderr:     stderr,
	}
}

func TestLocalLaunch(t *testing.T) {
	plan := &Plan{Run: "nightly", Size: 3, RedisURL: "redis://localhost:6379"}

	t.Run("forwards coordinator output", func(t *testing.T) {
		t.Setenv(envWantHelper, "1")
		var stdout, stderr bytes.Buffer

		err := helperLauncher(&stdout, &stderr).Launch(context.Background(), plan)
		require.NoError(t, err)
		assert.Equal(t, "result of nightly over 3 ranks\n", stdout.String())
	})

	t.Run("reports failing rank", func(t *testing.T) {
		t.Setenv(envWantHelper, "1")
		t.Setenv(envFailRank, "2")
		var stdout, stderr bytes.Buffer

		err := helperLauncher(&stdout, &stderr).Launch(context.Background(), plan)
		require.Error(t, err)

		var rankErr *RankError
		require.True(t, errors.As(err, &rankErr))
		assert.Equal(t, 2, rankErr.Rank)
		assert.Equal(t, 3, rankErr.ExitCode)
		assert.Contains(t, stderr.String(), "rank 2 exploded")
	})

	t.Run("stops remaining ranks after a failure", func(t *testing.T) {
		t.Setenv(envWantHelper, "1")
		t.Setenv(envFailRank, "1")
		t.Setenv(envHangRank, "0")
		var stdout, stderr bytes.Buffer

		start := time.Now()
		err := helperLauncher(&stdout, &stderr).Launch(context.Background(), plan)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 30*time.Second)

		var rankErr *RankError
		require.True(t, errors.As(err, &rankErr))
		assert.Equal(t, 1, rankErr.Rank)
	})

	t.Run("rejects invalid plan", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := helperLauncher(&stdout, &stderr).Launch(context.Background(), &Plan{Size: 2, RedisURL: "redis://x"})
		assert.ErrorContains(t, err, "run name cannot be empty")
	})

	t.Run("missing executable", func(t *testing.T) {
		l := &Local{Executable: "/nonexistent/blockmul", Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
		err := l.Launch(context.Background(), plan)

		var rankErr *RankError
		require.True(t, errors.As(err, &rankErr))
		assert.Equal(t, 0, rankErr.Rank)
		assert.ErrorContains(t, err, "failed to start")
	})
}
