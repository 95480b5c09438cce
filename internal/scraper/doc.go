// Package scraper defines the domain types shared by the run engine, the source
// strategies, the fetchers and the persistence layer.
package scraper
