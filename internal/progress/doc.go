// Package progress tracks in-flight I/O operations and notifies listeners as
// bytes move. A Source is owned by the operation it instruments and drives a
// small state machine (NEW, CONNECTED, UPDATE, DELETE). The Monitor keeps the
// set of active sources plus the subscribed listeners and fans out start,
// update and finish events synchronously on the caller's goroutine.
//
// Updates are coalesced: a source only asks the monitor to notify when its
// progress crosses into a new threshold-sized bucket, so many small reads cost
// one notification per bucket. The Hub is an optional Listener that moves
// events off the caller's goroutine and forwards them to Sinks in batches.
package progress
