// Package valkey provides a Valkey-backed storage.CodeStore.
//
// Codes are written with SET ... EX so Valkey evicts them once they expire,
// and redeemed with a Lua script that reads and deletes the key in one step.
// Of several concurrent redeemers only the first gets the payload, including
// across server instances sharing the same Valkey.
//
// Payloads are JSON, optionally sealed with AES-256-GCM:
//
//	enc, _ := security.NewEncryptor(key)
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "extension-oauth:",
//	    Encryptor: enc,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Tests need a running Valkey and are skipped unless VALKEY_TEST_ADDR is set.
package valkey
