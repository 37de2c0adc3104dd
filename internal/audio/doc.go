// Package audio turns decoded clip audio into the fixed-rate mono waveform
// the embedding model consumes.
//
// The chain is fixed and deterministic:
//
//	resample -> downmix -> trim silence -> normalize loudness -> (denoise)
//
// Every step tolerates empty or single-sample input and returns its best
// approximation instead of an error.
package audio
