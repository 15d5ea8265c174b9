// Package store defines the persistence contracts the runner and API depend
// on: the job-control store and the listing store. Implementations live in
// internal/storage; this package must not import database drivers.
package store
