// Package queue implements the job lease queue that feeds the embedding
// worker.
//
// Jobs are inserted by an upstream collector (or `embedder queue add`) in the
// pending state. FetchBatch leases the oldest pending jobs in a single
// statement, so concurrent workers never receive the same job. A leased job
// stays leased until the worker reports success or failure; there is no lease
// timeout, and jobs stranded by a crashed worker are requeued with
// ResetLeased.
//
// Two backends implement Backend: SQLite (default, single host) and Postgres
// (shared across hosts, leasing with FOR UPDATE SKIP LOCKED). Schema changes
// bump schemaVersion in schema.go; operators delete the SQLite file to adopt
// the new schema.
package queue
