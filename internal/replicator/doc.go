// Package replicator implements the sync coordinator: a background loop that
// exchanges one collection's documents with a Remote.
//
// The coordinator shares the store with the profile manager. It never holds
// document state: local writes are read back by sequence number and pushed,
// remote writes are pulled by cursor and applied through the store, so every
// write it makes has the same per-document atomicity as a foreground save.
//
// A pass is:
//
//	push  LocalChangesSince(checkpoint.PushedSeq)   in batches
//	pull  Remote.Pull(after=checkpoint.PulledCursor) in batches, ApplyRemote each
//	save  checkpoint after every batch
//
// Passes run at start, on every interval tick, after local writes and on
// Handle.SyncNow. Passes are serialized; triggers that arrive during a pass
// coalesce into a single follow-up pass. A failed pass is logged and retried
// on the next trigger.
package replicator
