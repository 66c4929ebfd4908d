// Package chat implements the Phantom room coordinator and its WebSocket
// transport.
//
// Rooms exist only while they have members. Invites and presence markers are
// written to their stores, but message content is relayed and never kept.
package chat
