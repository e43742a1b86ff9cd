/*
Package ports defines the driven ports (interfaces) for the tsexpr service.

These interfaces decouple the evaluation core from external implementations,
allowing the server to work with various series sources and snapshot storage
backends.

# Key Interfaces

  - Resolver: turns symbolic series identifiers into concrete point series.
  - SeriesStore: persists point series by identifier.
  - StateStore: persists cell-state snapshot bundles.
*/
package ports
