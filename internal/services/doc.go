// Package services defines shared error markers and context helpers consumed
// by the pipeline stages, plus the clients for external collaborators
// (ytdlp for media resolution, featureapi for the embedding model, snapshot
// for object storage).
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Sentinel error markers plus the Wrap helper, so callers can classify a
//     failure with errors.Is no matter how deep it was raised.
//   - Hint, which turns a marker into the operator next step that is logged
//     alongside every job failure.
package services
