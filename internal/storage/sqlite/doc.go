// Package sqlite persists invites and enrolled identities in a single SQLite
// file. Schema changes ship as embedded migrations applied on Open.
package sqlite
