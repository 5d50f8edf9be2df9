// Package dedup decides whether a record is NEW, UNCHANGED or UPDATED
// relative to every hash seen in earlier runs. A Store is opened from a
// SeenStore backend at run start, resolves records concurrently under
// hash-sharded locks, and commits the run's winners at the end.
package dedup
