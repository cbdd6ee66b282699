// Package sync keeps the in-memory portal state and the single remote
// document consistent.
//
// # Protocol
//
// The Engine mirrors one document with three primitives:
//
//   - InitialLoad waits for the backend, reads the document and replaces
//     every collection with its content (or with empty defaults).
//   - Persist writes the whole current state back, replacing the document.
//     Concurrent writers race and the last write wins; nothing is merged.
//   - SubscribeAndReplace registers a subscription that replaces the state
//     wholesale on every delivered snapshot.
//
// Local mutations go through Apply (optimistic, memory only) or Mutate
// (Apply followed by Persist).
//
// # Phases
//
// The engine moves Uninitialized → Connecting → Ready. A subscription error
// moves Ready back to Connecting until the next snapshot arrives. If the
// backend is not ready within the ready timeout the engine enters Failed,
// which only Retry leaves.
//
// # Re-arming
//
// When the connection monitor reports that the network came back, the
// engine subscribes again after a short delay. The previous subscription is
// kept; duplicate deliveries are harmless because replacement is idempotent.
//
// # Observers
//
// Every replacement is reported to registered ReplaceObservers, one at a
// time and in delivery order, with the notifications before and after the
// replacement. The notification dispatcher uses this to detect new entries.
package sync
