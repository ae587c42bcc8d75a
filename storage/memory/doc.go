// Package memory provides in-process implementations of storage.CodeStore and
// storage.ClientRegistry.
//
// Store keeps authorization codes in a map guarded by a sync.RWMutex.
// Redeeming takes the write lock and deletes the entry, so of several
// concurrent redeemers only one gets the code. A background sweep removes
// codes that expired without being redeemed; it bounds memory and is not
// needed for correctness.
//
// Codes do not survive a restart and are not shared between processes. Use
// storage/valkey or storage/redis when the token request may be served by a
// different instance than the authorization request.
//
//	store := memory.New()
//	defer store.Stop()
//
//	clients, err := memory.NewClientRegistry(defaultClient)
package memory
