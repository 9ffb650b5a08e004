// Package store persists account records in SQLite. Each record carries the
// owner metadata, the encrypted credential set and the optional push
// subscription. Writes are per-document and independent; the store performs
// no internal retries.
package store
