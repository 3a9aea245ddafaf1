// Package queue implements the node-local handles of distributed queues.
//
// A queue is a header (see package header) plus one cache entry per slot,
// keyed by the queue id and a monotonically increasing index. The header's
// Head and Tail counters are the only coordination point: producers advance
// Tail, consumers advance Head, and each index is claimed by exactly one
// caller.
//
// Two [Delegate] variants exist, chosen by the cache write mode:
//
//   - [Atomic] advances the counters with compare-and-set on the header
//     (cache.Cache.Replace) and retries on contention.
//   - [Transactional] locks the header key (cache.Locker) for the duration
//     of each operation.
//
// Callers hold a [Proxy], which wraps a delegate and rejects operations
// once the owning manager is stopping.
//
// # Lifecycle callbacks
//
// The manager drives handles through [Delegate.OnHeaderChanged],
// [Delegate.OnRemoved], [Delegate.OnKernalStop] and
// [Delegate.OnClientDisconnected]. After removal every operation fails
// with datastruct.ErrStructureRemoved; after a stop with
// datastruct.ErrStopping. A disconnect fails the blocking Take calls that
// were waiting at that moment with datastruct.ErrClientDisconnected.
package queue
