// Package progress provides the run progress events and the Hub that delivers
// them. Observers attach to receive a replay of the latest snapshot followed by
// live events; slow observers are dropped rather than buffered without bound.
// Independently, the hub batches events on a background goroutine and fans them
// out to pluggable sinks such as logs, Prometheus metrics or Pub/Sub.
package progress
