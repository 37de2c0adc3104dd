// Package preflight provides readiness checks for the binaries, directories,
// and services the embedder depends on.
//
// These checks back the CLI "embedder check" command and run once before the
// worker loop starts, so a misconfigured host fails before leasing any job.
// Checks for optional features are skipped when the feature is disabled.
package preflight
