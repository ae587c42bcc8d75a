// Package verification answers whether a phone number is on record for a
// calling region. It is the protected resource behind /oauth/verify-mobile.
//
// Records come from a static dataset: the embedded default generated for the
// partner demo, or a JSON or CSV file named by PHONE_DATA_FILE. Lookups are
// read-only and safe for concurrent use.
package verification
