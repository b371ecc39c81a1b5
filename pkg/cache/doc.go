// Package cache provides a Redis-backed cache for sent-item pages.
//
// Sent-item history is effectively append-only: a page at a given offset is
// stable between runs except at the head of the collection. Caching raw page
// payloads with a short TTL lets repeated runs (the reconcile loop is meant
// to be run regularly) skip most Graph traffic.
//
// The cache is optional. Callers without Redis simply pass a nil *Manager
// and every lookup is a miss.
package cache
