// Package run owns scrape run execution: the per-run state machine, the
// single-flight Manager that starts and stops runs, and the drive loop that
// walks a source strategy through the fetcher.
//
// StartRun, StopRun and GetStatus only touch memory. All persistence and
// progress emission happen on the drive goroutine that owns the run.
package run
