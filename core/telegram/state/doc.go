// Package state stores conversation sessions keyed by (user, chat).
//
// A Store only persists snapshots; callers serialize access per key with
// KeyedMutex so one session never sees two concurrent transitions.
package state
