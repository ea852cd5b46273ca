// Package follower keeps a WebSocket subscription to one livepaste room alive.
//
// Follower.Send is non-blocking: messages are encoded and queued in a bounded
// buffer, and when the buffer is full the oldest queued message is evicted so
// the latest edit always survives.
//
// Follower.Run connects, hands every decoded room message to the callback and
// drains the queue onto the socket. When the connection drops it reconnects
// with truncated exponential backoff (1s→60s, ±25% jitter). Frames the
// follower cannot decode are logged and skipped.
//
// The dial field is injectable for tests.
package follower
