package comm

import (
	"context"
	"fmt"
	"sync"
)

type route struct {
	src, dst int
	tag      Tag
}

// MemoryWorld connects size ranks running as goroutines in one process.
// Every (src, dst, tag) route is an unbuffered channel, so Send blocks until
// the peer receives the frame.
type MemoryWorld struct {
	size   int
	routes map[route]chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewMemoryWorld creates a world of size ranks.
func NewMemoryWorld(size int) (*MemoryWorld, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size must be at least 1, got %d", size)
	}

	w := &MemoryWorld{
		size:   size,
		routes: make(map[route]chan []byte),
		done:   make(chan struct{}),
	}
	for src := 0; src < size; src++ {
		for dst := 0; dst < size; dst++ {
			if src == dst {
				continue
			}
			for _, tag := range []Tag{TagToWorker, TagToCoordinator} {
				w.routes[route{src: src, dst: dst, tag: tag}] = make(chan []byte)
			}
		}
	}
	return w, nil
}

// Size returns the number of ranks in the world.
func (w *MemoryWorld) Size() int {
	return w.size
}

// Comm returns the endpoint for rank.
func (w *MemoryWorld) Comm(rank int) (*MemoryComm, error) {
	if rank < 0 || rank >= w.size {
		return nil, fmt.Errorf("%w: %d not in world of %d", ErrInvalidRank, rank, w.size)
	}
	return &MemoryComm{world: w, rank: rank}, nil
}

// Close tears the world down. Blocked and future sends and receives on any
// rank fail with ErrCommunication. Safe to call multiple times.
func (w *MemoryWorld) Close() error {
	w.once.Do(func() { close(w.done) })
	return nil
}

// MemoryComm is one rank's endpoint in a MemoryWorld.
type MemoryComm struct {
	world *MemoryWorld
	rank  int
}

// Rank returns this endpoint's rank.
func (c *MemoryComm) Rank() int { return c.rank }

// Size returns the world size.
func (c *MemoryComm) Size() int { return c.world.size }

// Send hands a copy of frame to dest. It blocks until dest receives it.
func (c *MemoryComm) Send(ctx context.Context, dest int, tag Tag, frame []byte) error {
	if err := checkPeer(c, dest, tag); err != nil {
		return err
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	ch := c.world.routes[route{src: c.rank, dst: dest, tag: tag}]
	select {
	case ch <- buf:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: send %s to rank %d: %w", ErrCommunication, tag, dest, ctx.Err())
	case <-c.world.done:
		return fmt.Errorf("%w: send %s to rank %d: world closed", ErrCommunication, tag, dest)
	}
}

// Recv blocks until a frame from src under tag arrives.
func (c *MemoryComm) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if err := checkPeer(c, src, tag); err != nil {
		return nil, err
	}

	ch := c.world.routes[route{src: src, dst: c.rank, tag: tag}]
	select {
	case frame := <-ch:
		return frame, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: receive %s from rank %d: %w", ErrCommunication, tag, src, ctx.Err())
	case <-c.world.done:
		return nil, fmt.Errorf("%w: receive %s from rank %d: world closed", ErrCommunication, tag, src)
	}
}

// Close is a no-op; the world owns the routes.
func (c *MemoryComm) Close() error { return nil }
