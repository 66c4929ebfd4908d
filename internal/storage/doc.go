// Package storage defines the persistence contracts shared by the auth and
// chat services.
//
// Three stores back the system:
//   - InviteStore: append-only record that one Phantom ID invited another
//     into a room (SQLite).
//   - IdentityStore: enrolled identities, unique by Phantom ID and public key
//     (SQLite).
//   - PresenceStore: advisory online/offline marker per Phantom ID (bbolt).
//
// Room membership is deliberately absent: it lives in memory in the chat
// service and is never read back from a store.
//
// # Error Types
//
//   - ErrNotFound: Indicates a requested record is missing.
//   - ErrAlreadyExists: Indicates a uniqueness constraint rejected a write.
package storage
