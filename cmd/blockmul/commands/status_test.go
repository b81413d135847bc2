package commands

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()
	mr := miniredis.RunT(t)
	redisURL := "redis://" + mr.Addr()

	rc, err := comm.NewRedisComm(&redis.Options{Addr: mr.Addr()}, "nightly", 0, 4)
	require.NoError(t, err)
	defer rc.Close()

	now := time.Now().UnixMilli()
	record := &comm.RunRecord{
		Run:         "nightly",
		Size:        4,
		Rows:        5,
		Inner:       5,
		Cols:        5,
		State:       "FAILED",
		Replies:     2,
		Error:       "communication failure: receive to-coordinator from rank 3: context deadline exceeded",
		StartedAtMs: now - 1500,
		UpdatedAtMs: now,
	}
	require.NoError(t, rc.SaveRunRecord(ctx, record))

	t.Run("prints the record", func(t *testing.T) {
		stdout, _, err := execute(t, "status", "--run", "nightly", "--redis-url", redisURL)
		require.NoError(t, err)

		assert.Contains(t, stdout, "Run:        nightly\n")
		assert.Contains(t, stdout, "State:      FAILED\n")
		assert.Contains(t, stdout, "Processes:  4 (3 workers)\n")
		assert.Contains(t, stdout, "Replies:    2/3\n")
		assert.Contains(t, stdout, "Error:      communication failure")
	})

	t.Run("json output", func(t *testing.T) {
		stdout, _, err := execute(t, "status", "--run", "nightly", "--redis-url", redisURL, "--json")
		require.NoError(t, err)

		var got comm.RunRecord
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, *record, got)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, _, err := execute(t, "status", "--run", "other", "--redis-url", redisURL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no record for run 'other'")
	})

	t.Run("run name is required", func(t *testing.T) {
		_, _, err := execute(t, "status", "--redis-url", redisURL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required flag(s) "run" not set`)
	})

	t.Run("uses run.redis_url from the config", func(t *testing.T) {
		chdir(t, t.TempDir())
		yml := "version: \"1.0\"\nrun:\n  processes: 4\n  redis_url: " + redisURL + "\n"
		require.NoError(t, writeFile(t, "blockmul.yml", yml))

		stdout, _, err := execute(t, "status", "--run", "nightly")
		require.NoError(t, err)
		assert.Contains(t, stdout, "State:      FAILED\n")
	})
}

func TestDownCommand_PurgesKeys(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rc, err := comm.NewRedisComm(&redis.Options{Addr: mr.Addr()}, "nightly", 0, 2)
	require.NoError(t, err)
	defer rc.Close()
	require.NoError(t, rc.SaveRunRecord(ctx, &comm.RunRecord{Run: "nightly", Size: 2, State: "FAILED"}))
	require.NoError(t, rc.Send(ctx, 1, comm.TagToWorker, []byte{1}))

	// Docker may or may not be available; key removal happens either way
	_, _, err = execute(t, "down", "--run", "nightly", "--redis-url", "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}
