// Package embedding turns a prepared waveform into a single vector by calling
// the external feature extractor either once on the whole clip or once per
// overlapping window and averaging the results.
package embedding
