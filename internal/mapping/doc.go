// Package mapping records which external key each index ordinal id belongs
// to. Several backends can run side by side behind a Composite: a flat CSV
// file, SQLite, Postgres, and a Badger key/value store. Writes fan out in
// order; loads merge with later backends overriding earlier ones.
package mapping
