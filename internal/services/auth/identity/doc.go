// Package identity derives Ed25519 identities and their Phantom IDs.
//
// Two Phantom ID schemes exist and are kept apart on purpose:
//   - Generated: a random "phantom-<uuid>" paired with a random key. Unique
//     only because enrollment rejects duplicates.
//   - Derived: "phantom-" plus the first 10 bytes of SHA-256(publicKey) in hex.
//     Recomputable from the recovery phrase alone.
//
// Every operation except Enroller.Enroll is pure and performs no I/O.
package identity
