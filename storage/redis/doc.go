// Package redis provides a Redis-backed storage.CodeStore built on go-redis.
//
// Codes are written with SET NX EX and redeemed with GETDEL, which reads and
// removes the key atomically on the server. It is the go-redis counterpart of
// storage/valkey for deployments that already run Redis or a managed service
// speaking the same protocol.
package redis
