// Package featureapi talks to the external feature extraction service that
// turns a mono waveform into an embedding vector.
//
// The service speaks msgpack over HTTP: POST /embed with the samples and
// sample rate, GET /info for the model's output dimension. Failures are
// tagged with services.ErrEmbedding so the orchestrator treats them as
// per-job errors.
package featureapi
