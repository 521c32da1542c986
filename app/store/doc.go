// Package store keeps routes and their duration samples in SQLite.
// A route is a case-insensitive (start, destination) pair with a stable integer id,
// samples are appended against that id and never changed. Writes run in IMMEDIATE
// transactions, so concurrent runs against the same file are serialized by SQLite itself.
package store
