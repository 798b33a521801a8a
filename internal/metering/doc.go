// Package metering decides whether an I/O operation is tracked by the progress
// monitor and at what byte granularity updates are coalesced. Policies are
// consulted when a source is created; a source keeps the threshold it captured
// even if the active policy is later replaced.
package metering
