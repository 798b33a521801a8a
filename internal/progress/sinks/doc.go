// Package sinks implements concrete progress consumers such as Prometheus,
// repository-backed transfer history, Pub/Sub publishing and structured
// logging. Each sink satisfies progress.Sink and is driven by a progress.Hub.
package sinks
