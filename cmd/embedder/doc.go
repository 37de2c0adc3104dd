// Command embedder runs the audio embedding ingestion worker and its operator
// tooling.
//
// "embedder run" leases jobs from the queue until interrupted; "embedder once"
// runs a single cycle. Local files are embedded with "embedder ingest", and the
// queue, index, and mapping stores are inspected through the "queue", "index",
// "search", and "logs" subcommands. "embedder check" reports whether the host is
// ready to run the worker.
package main
