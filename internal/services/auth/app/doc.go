// Package server composes and runs the auth process boundary.
//
// It enrolls recovery-phrase identities, exchanges phrases for bearer tokens,
// and answers the lookups clients make before opening a room. Identities and
// invites come from the same SQLite store the chat service writes.
package server
