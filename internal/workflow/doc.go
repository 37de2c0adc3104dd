// Package workflow drives the embedding pipeline.
//
// Each cycle leases a batch of jobs from the queue and processes them one at
// a time: resolve the source, extract the clip into a temp WAV, normalize,
// embed, add the vector to the index, record the mapping, and report the
// outcome back to the queue. After the batch the index is persisted once and
// optionally snapshotted to object storage.
//
// Per-job failures are reported and logged with an operator hint; they never
// stop the worker. A queue outage aborts the cycle and is retried after the
// poll interval. An index persist failure is fatal because the in-memory
// ordinal ids are no longer backed by the file.
package workflow
