// Package crawler reconciles toolinfo documents fetched from registered crawl
// targets against the tool inventory. It defines the storage contracts, the
// per-target Reconciler and the run-level Engine.
package crawler
