// Package rate implements the Redis-backed fixed-window attempt limiters
// used by the engine: login attempts keyed by a digest of the credential
// key, and second-factor code confirmations keyed by user id.
package rate
