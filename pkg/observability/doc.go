/*
Package observability provides the Prometheus instrumentation for the tsexpr
server: connection admission, per-operation request outcomes, resolver
invocations and request latency.
*/
package observability
