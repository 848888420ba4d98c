// Package token issues and validates the signed session assertions used by
// the keygate engine: compact HS256 JWTs carrying identity and privilege,
// self-contained with no server-side session state.
//
// Two assertion shapes exist. Full sessions carry {user_id, is_admin,
// user_type, exp} and live for the configured session TTL. Pending
// second-factor assertions add temp:true and a much shorter TTL; they are
// accepted only by the second-factor verification operation, never as a
// session.
//
// Validation failures are deliberately uniform: malformed, mis-signed, and
// expired tokens all surface as [ErrInvalid] so callers learn nothing about
// which check failed.
package token
