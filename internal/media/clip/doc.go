// Package clip extracts a bounded audio window from a remote stream into a
// temporary mono PCM WAV file using ffmpeg.
//
// The returned Temp is owned by the caller, who removes it with
// `defer tmp.Remove()`. Failed extractions remove their own temp file.
package clip
