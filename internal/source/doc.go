// Package source holds the declarative table of scrape sources and the
// strategies that enumerate work for each dispatch mode.
//
// Requests are validated once, by Registry.Resolve, before a run exists.
package source
