// Package testutil provides a controllable clock, PKCE and client fixtures and
// a small HTTP request builder for the extension-oauth tests.
package testutil
