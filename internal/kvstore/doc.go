// Package kvstore provides the embedded key-value engine backing a
// partition's runtime state, and the narrow adapter the snapshot
// controller uses to snapshot and restore it.
//
// BadgerEngine wraps Badger v3 down to open, stream-based Save/LoadSnapshot,
// and close -- the runtime state it backs is opaque to this partition's
// snapshot path. BadgerAdapter wraps a BadgerEngine down further, to
// exactly the capability internal/snapshot needs -- open, snapshot to a
// directory, close -- so the controller never gains access to application
// keys through its database handle.
package kvstore
