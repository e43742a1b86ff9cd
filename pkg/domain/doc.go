/*
Package domain contains the core value and expression model for the tsexpr
service.

It defines the fundamental entities: the time axis, the point series, the
closed set of expression node variants that form a request's computation
graph, and the cell-state snapshot types. This package is kept pure and free
of external dependencies like I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - FixedAxis / Period: the time geometry every series is aligned to.
  - Series: one value per axis step, with a point interpretation.
  - Node: a variant of the expression graph (Point, Ref, Average, BinOp, ...).
  - Vector: an ordered set of top-level expressions evaluated together.
*/
package domain
