// Package tsexpr is a distributed time-series computation service.
//
// Expressions over fixed-interval time series are built as immutable node
// graphs (pkg/domain), shipped over a compact binary protocol (pkg/codec) and
// evaluated lazily against a requested period (pkg/eval). A server
// (pkg/server) hosts the evaluation pipeline behind a TCP listener and binds
// symbolic references through a pluggable resolver; a blocking client
// (pkg/client) submits vectors for evaluation or percentile aggregation.
//
// This root package is a thin facade over those building blocks for callers
// that embed the engine rather than run the standalone daemon (cmd/tsexpr).
package tsexpr
