// Package keygate is an authentication and quota engine for systems whose
// sole credential is a shared opaque key. It exchanges a valid key for a
// short-lived signed session assertion, optionally enforces a TOTP second
// factor for admin accounts, and meters a rolling daily usage quota for
// normal accounts.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// keygate is the public surface. It exposes [Engine], [Builder], [Config],
// the storage contracts ([AccountStore], [SettingsStore]), the [Dispatcher]
// collaborator interface, and value types. Token signing lives in the token
// subpackage; the shipped PostgreSQL store lives in store/postgres; rate
// limiting and secret sealing live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Serve HTTP, render QR images, or deliver messages. Transport, QR
//     rendering, and dispatch are collaborators behind interfaces.
//   - Keep per-session server state. Assertions are self-contained and
//     expire on their own; there is no revocation list.
//   - Expose Redis or SQL handles, sealed secrets, or encoding details in
//     its public API.
//
// # Failure contract
//
// Unknown keys and malformed credentials are reported uniformly as
// [ErrCredentialInvalid] so callers cannot enumerate accounts. Token
// validation failures collapse to [ErrTokenInvalid] regardless of cause.
// A dispatch collaborator outage never fails a send; it degrades to a
// zero-sent, all-failed result.
package keygate
