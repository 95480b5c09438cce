// Package store defines interfaces for persistence dependencies (run history
// and the article catalogue). Implementations live in internal/storage; this
// package must not import database drivers or concrete clients.
package store
