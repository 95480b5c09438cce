// Package memory provides in-memory run history, article and blob stores for
// development and tests.
package memory
