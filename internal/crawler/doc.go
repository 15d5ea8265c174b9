// Package crawler holds the domain model shared by every layer: the
// normalized JobRecord, listings and their lookups, crawl jobs with their
// progress counters, per-item audit rows and batches, plus the small
// collaborator interfaces (clock, ids, blob store, hasher).
package crawler
