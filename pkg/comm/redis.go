package comm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPollInterval is how long a single BLPOP waits before the receive loop
// re-checks its context. Redis does not accept blocking timeouts below one second.
const DefaultPollInterval = time.Second

// RedisComm is one rank's endpoint in a world whose routes are Redis lists.
// All keys are namespaced by run name. The client is safe for concurrent use,
// so the coordinator may receive from several workers at once.
type RedisComm struct {
	rdb          *redis.Client
	run          string
	rank         int
	size         int
	pollInterval time.Duration
}

// NewRedisComm creates the endpoint for rank in a world of size ranks.
//
// The connection pool is grown to at least size+2 so that one blocking receive
// per worker can be outstanding at the same time.
func NewRedisComm(redisOpts *redis.Options, run string, rank, size int) (*RedisComm, error) {
	if run == "" {
		return nil, fmt.Errorf("run name cannot be empty")
	}
	if size < 1 {
		return nil, fmt.Errorf("world size must be at least 1, got %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: %d not in world of %d", ErrInvalidRank, rank, size)
	}

	opts := *redisOpts
	if opts.PoolSize < size+2 {
		opts.PoolSize = size + 2
	}

	return &RedisComm{
		rdb:          redis.NewClient(&opts),
		run:          run,
		rank:         rank,
		size:         size,
		pollInterval: DefaultPollInterval,
	}, nil
}

// Rank returns this endpoint's rank.
func (c *RedisComm) Rank() int { return c.rank }

// Size returns the world size.
func (c *RedisComm) Size() int { return c.size }

// Run returns the run name used to namespace keys.
func (c *RedisComm) Run() string { return c.run }

// Close closes the Redis connection. Implements io.Closer.
func (c *RedisComm) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *RedisComm) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// WaitReady pings Redis every interval until it answers or ctx is done.
// Ranks started alongside a fresh Redis container use it to ride out startup.
func (c *RedisComm) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := c.Ping(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: redis not ready: %w", ErrCommunication, err)
		case <-ticker.C:
		}
	}
}

// Send appends frame to the route list for dest. Unlike the in-memory world
// it returns as soon as Redis has accepted the frame.
func (c *RedisComm) Send(ctx context.Context, dest int, tag Tag, frame []byte) error {
	if err := checkPeer(c, dest, tag); err != nil {
		return err
	}

	key := RouteKey(c.run, c.rank, dest, tag)
	if err := c.rdb.RPush(ctx, key, frame).Err(); err != nil {
		return fmt.Errorf("%w: send %s to rank %d: %w", ErrCommunication, tag, dest, err)
	}
	return nil
}

// Recv pops the next frame from src under tag, waiting until one arrives or
// ctx is done.
func (c *RedisComm) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if err := checkPeer(c, src, tag); err != nil {
		return nil, err
	}

	key := RouteKey(c.run, src, c.rank, tag)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: receive %s from rank %d: %w", ErrCommunication, tag, src, err)
		}

		result, err := c.rdb.BLPop(ctx, c.pollInterval, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: receive %s from rank %d: %w", ErrCommunication, tag, src, err)
		}

		// BLPOP returns [key, value]
		if len(result) != 2 {
			return nil, fmt.Errorf("%w: unexpected BLPOP reply of %d elements", ErrCommunication, len(result))
		}
		return []byte(result[1]), nil
	}
}

// SaveRunRecord writes the run record hash.
func (c *RedisComm) SaveRunRecord(ctx context.Context, r *RunRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run record: %w", err)
	}
	if err := c.rdb.HSet(ctx, RunRecordKey(r.Run), RunRecordToHash(r)).Err(); err != nil {
		return fmt.Errorf("failed to write run record to Redis: %w", err)
	}
	return nil
}

// GetRunRecord reads the run record for this endpoint's run.
// Returns (nil, redis.Nil) if the record does not exist.
func (c *RedisComm) GetRunRecord(ctx context.Context) (*RunRecord, error) {
	hash, err := c.rdb.HGetAll(ctx, RunRecordKey(c.run)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run record from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}

	record, err := HashToRunRecord(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}
	return record, nil
}

// Claim takes ownership of the run for this coordinator. It fails with
// ErrRunInUse when another coordinator holds the claim or when frames or a record
// from an earlier run with the same name are still stored, since a receive would
// otherwise pop those stale frames.
func (c *RedisComm) Claim(ctx context.Context) error {
	claimKey := ClaimKey(c.run)
	ok, err := c.rdb.SetNX(ctx, claimKey, time.Now().UnixMilli(), 0).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to claim run: %v", ErrCommunication, err)
	}
	if !ok {
		return fmt.Errorf("%w: run '%s' is claimed by another coordinator", ErrRunInUse, c.run)
	}

	var stale []string
	iter := c.rdb.Scan(ctx, 0, RunPattern(c.run), 100).Iterator()
	for iter.Next(ctx) {
		if key := iter.Val(); key != claimKey {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: failed to scan run keys: %v", ErrCommunication, err)
	}
	if len(stale) > 0 {
		return fmt.Errorf("%w: run '%s' still holds %d keys from an earlier run (e.g. %s)",
			ErrRunInUse, c.run, len(stale), stale[0])
	}
	return nil
}

// Purge deletes every key belonging to this run and returns how many were removed.
func (c *RedisComm) Purge(ctx context.Context) (int, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, RunPattern(c.run), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan run keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete run keys: %w", err)
	}
	return int(n), nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
