// Package snapshot copies the persisted index and mapping file to an
// S3-compatible bucket after each cycle. Uploads are best-effort: the
// orchestrator logs failures and carries on.
package snapshot
