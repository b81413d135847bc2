// Package comm provides the point-to-point message substrate that blockmul ranks
// use to exchange work and results.
//
// # Overview
//
// A run is a fixed world of size ranks. Rank 0 is the coordinator and ranks
// 1..size-1 are workers. Every message is an ordered sequence of frames sent
// from one rank to another under a Tag. Frames on the same (source, destination,
// tag) route are delivered in the order they were sent.
//
// Two worlds implement the Comm interface:
//
//   - MemoryWorld connects ranks running as goroutines in one process. Each route
//     is an unbuffered channel, so a send blocks until the peer receives it.
//   - RedisComm connects ranks running as separate processes or containers. Each
//     route is a Redis list; a send is RPUSH and a receive is BLPOP.
//
// # Protocol
//
// The coordinator sends a worker four frames tagged TagToWorker:
//
//	offset, row_count, row-block of A (row_count×K), all of B (K×C)
//
// The worker replies with three frames tagged TagToCoordinator:
//
//	offset, row_count, row-block of the product (row_count×C)
//
// SendWork, RecvWork, SendResult and RecvResult encode and decode these
// sequences.
//
// # Redis Schema
//
// All keys are namespaced by run name so that concurrent runs can share a
// Redis server:
//
//	Routes:     blockmul:{run}:route:{src}:{dst}:{tag-name}
//	Run record: blockmul:{run}:record
package comm
