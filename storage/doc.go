// Package storage defines the persistence contracts of the extension OAuth server.
//
// Two interfaces are defined here:
//   - ClientRegistry: read-only lookup of the statically configured OAuth clients
//   - CodeStore: single-use authorization codes with a fixed time to live
//
// The package also holds the shared models (Client, AuthorizationCode), the sentinel
// errors returned by every backend, and the JSON codec used by the external stores.
//
// Implementations are provided in subpackages:
//   - storage/memory: process memory, for tests and single-instance deployments
//   - storage/valkey: Valkey, for deployments where codes must outlive a process
//   - storage/redis: Redis, same contract as storage/valkey
package storage
