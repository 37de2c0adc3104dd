// Package logs reads the embedder log file for the CLI "logs" command.
//
// It returns the last N lines with bounded memory, resumes from a byte offset,
// and follows appended lines until the caller's context ends. Lines can be
// filtered by job id or event type so one job's history can be isolated from a
// busy worker log.
package logs
