// Package auth owns Phantom identities.
//
// Subpackages:
//   - identity: recovery-phrase derivation and enrollment with collision retry
//   - token: HS256 bearer tokens bound to a Phantom ID
//   - app: auth HTTP API wiring and lifecycle
package auth
