// Package store wraps a single-file bbolt database behind the small KV
// contract the catalog needs: get, compare-and-set writes keyed by a version
// read beforehand, delete, and ordered prefix scans. A failed version check
// surfaces as ErrConflict and means the write did not happen; callers decide
// whether to re-read and retry.
package store
