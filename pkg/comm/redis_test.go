package comm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisWorld creates size endpoints connected to a miniredis instance
func setupRedisWorld(t *testing.T, size int) ([]*RedisComm, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	comms := make([]*RedisComm, size)
	for rank := range comms {
		c, err := NewRedisComm(&redis.Options{Addr: mr.Addr()}, "test-run", rank, size)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		comms[rank] = c
	}
	return comms, mr
}

func TestNewRedisComm(t *testing.T) {
	opts := &redis.Options{Addr: "localhost:6379"}

	t.Run("rejects empty run name", func(t *testing.T) {
		_, err := NewRedisComm(opts, "", 0, 2)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "run name cannot be empty")
	})

	t.Run("rejects rank outside world", func(t *testing.T) {
		_, err := NewRedisComm(opts, "r", 2, 2)
		assert.ErrorIs(t, err, ErrInvalidRank)
	})

	t.Run("grows pool for concurrent receives", func(t *testing.T) {
		c, err := NewRedisComm(&redis.Options{Addr: "localhost:6379", PoolSize: 1}, "r", 0, 40)
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, 42, c.rdb.Options().PoolSize)
		assert.Equal(t, "r", c.Run())
	})
}

func TestRedisPing(t *testing.T) {
	comms, _ := setupRedisWorld(t, 2)
	assert.NoError(t, comms[0].Ping(context.Background()))
}

func TestWaitReady(t *testing.T) {
	t.Run("returns once Redis answers", func(t *testing.T) {
		comms, _ := setupRedisWorld(t, 2)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, comms[1].WaitReady(ctx, 10*time.Millisecond))
	})

	t.Run("gives up when ctx expires", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		addr := mr.Addr()
		mr.Close()

		c, err := NewRedisComm(&redis.Options{Addr: addr, MaxRetries: -1}, "test-run", 1, 2)
		require.NoError(t, err)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, c.WaitReady(ctx, 20*time.Millisecond), ErrCommunication)
	})
}

func TestRedisSendRecv(t *testing.T) {
	comms, mr := setupRedisWorld(t, 3)
	ctx := context.Background()

	t.Run("send pushes onto route list", func(t *testing.T) {
		require.NoError(t, comms[0].Send(ctx, 2, TagToWorker, EncodeInt(11)))

		items, err := mr.List(RouteKey("test-run", 0, 2, TagToWorker))
		require.NoError(t, err)
		assert.Len(t, items, 1)

		frame, err := comms[2].Recv(ctx, 0, TagToWorker)
		require.NoError(t, err)
		v, err := DecodeInt(frame)
		require.NoError(t, err)
		assert.Equal(t, 11, v)
	})

	t.Run("frames keep order per route", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, comms[1].Send(ctx, 0, TagToCoordinator, EncodeInt(i)))
		}
		for i := 0; i < 5; i++ {
			frame, err := comms[0].Recv(ctx, 1, TagToCoordinator)
			require.NoError(t, err)
			v, _ := DecodeInt(frame)
			assert.Equal(t, i, v)
		}
	})

	t.Run("binary frames survive intact", func(t *testing.T) {
		frame := []byte{0, 0xff, 0x00, '\n', 0x80}
		require.NoError(t, comms[0].Send(ctx, 1, TagToWorker, frame))
		got, err := comms[1].Recv(ctx, 0, TagToWorker)
		require.NoError(t, err)
		assert.Equal(t, frame, got)
	})

	t.Run("receive waits for a late sender", func(t *testing.T) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = comms[2].Send(ctx, 0, TagToCoordinator, []byte("late"))
		}()

		got, err := comms[0].Recv(ctx, 2, TagToCoordinator)
		require.NoError(t, err)
		assert.Equal(t, "late", string(got))
	})

	t.Run("cancelled context stops receive", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := comms[0].Recv(cctx, 1, TagToCoordinator)
		assert.ErrorIs(t, err, ErrCommunication)
	})

	t.Run("rejects self as peer", func(t *testing.T) {
		assert.ErrorIs(t, comms[1].Send(ctx, 1, TagToWorker, nil), ErrInvalidRank)
	})
}

func TestRedisProtocol(t *testing.T) {
	comms, _ := setupRedisWorld(t, 2)
	ctx := context.Background()

	work := &WorkAssignment{
		Offset:   0,
		RowCount: 0,
		Rows:     emptyBlock(t, 3),
		Right:    mustMatrix(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}),
	}
	require.NoError(t, SendWork(ctx, comms[0], 1, work))

	got, err := RecvWork(ctx, comms[1])
	require.NoError(t, err)
	assert.Equal(t, 0, got.RowCount)
	assert.Equal(t, 3, got.Rows.Cols())
	assert.True(t, work.Right.Equal(got.Right))
}

func TestRunRecordStorage(t *testing.T) {
	comms, _ := setupRedisWorld(t, 2)
	ctx := context.Background()

	t.Run("missing record is not found", func(t *testing.T) {
		_, err := comms[0].GetRunRecord(ctx)
		assert.True(t, IsNotFound(err))
	})

	t.Run("save and load", func(t *testing.T) {
		record := &RunRecord{Run: "test-run", Size: 2, Rows: 4, Inner: 4, Cols: 4, State: "DISPATCHED", StartedAtMs: 10, UpdatedAtMs: 20}
		require.NoError(t, comms[0].SaveRunRecord(ctx, record))

		loaded, err := comms[1].GetRunRecord(ctx)
		require.NoError(t, err)
		assert.Equal(t, record, loaded)
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		assert.Error(t, comms[0].SaveRunRecord(ctx, &RunRecord{Run: "test-run"}))
	})
}

func TestPurge(t *testing.T) {
	comms, mr := setupRedisWorld(t, 2)
	ctx := context.Background()

	require.NoError(t, comms[0].Send(ctx, 1, TagToWorker, []byte("a")))
	require.NoError(t, comms[0].SaveRunRecord(ctx, &RunRecord{Run: "test-run", Size: 2, State: "DONE"}))
	mr.Set("blockmul:other-run:record", "keep")

	n, err := comms[0].Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("blockmul:other-run:record"))
	assert.False(t, mr.Exists(RunRecordKey("test-run")))

	n, err = comms[0].Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("first coordinator owns the run", func(t *testing.T) {
		comms, mr := setupRedisWorld(t, 2)
		require.NoError(t, comms[0].Claim(ctx))
		assert.True(t, mr.Exists(ClaimKey("test-run")))

		err := comms[0].Claim(ctx)
		assert.ErrorIs(t, err, ErrRunInUse)
		assert.Contains(t, err.Error(), "claimed by another coordinator")
	})

	t.Run("refuses leftover frames", func(t *testing.T) {
		comms, mr := setupRedisWorld(t, 2)
		require.NoError(t, comms[1].Send(ctx, 0, TagToCoordinator, EncodeInt(0)))

		err := comms[0].Claim(ctx)
		assert.ErrorIs(t, err, ErrRunInUse)
		assert.Contains(t, err.Error(), RouteKey("test-run", 1, 0, TagToCoordinator))

		// The leftover frame is left for "blockmul down" to clear
		assert.True(t, mr.Exists(RouteKey("test-run", 1, 0, TagToCoordinator)))
	})

	t.Run("refuses a kept record", func(t *testing.T) {
		comms, _ := setupRedisWorld(t, 2)
		require.NoError(t, comms[0].SaveRunRecord(ctx, &RunRecord{Run: "test-run", Size: 2, State: "FAILED"}))
		assert.ErrorIs(t, comms[0].Claim(ctx), ErrRunInUse)
	})

	t.Run("run name is free again after purge", func(t *testing.T) {
		comms, _ := setupRedisWorld(t, 2)
		require.NoError(t, comms[0].Claim(ctx))
		require.NoError(t, comms[0].Send(ctx, 1, TagToWorker, EncodeInt(0)))

		_, err := comms[0].Purge(ctx)
		require.NoError(t, err)
		assert.NoError(t, comms[0].Claim(ctx))
	})

	t.Run("other runs do not interfere", func(t *testing.T) {
		comms, mr := setupRedisWorld(t, 2)
		mr.Set("blockmul:other-run:record", "busy")
		assert.NoError(t, comms[0].Claim(ctx))
	})
}
