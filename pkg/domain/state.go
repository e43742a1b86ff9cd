package domain

// CellStateID identifies one model cell inside a snapshot bundle: the
// catchment id it belongs to and its mid-point/area geometry. Enough to match
// a saved state back to a cell without inspecting the state itself.
type CellStateID struct {
	Cid  int64
	X    float64
	Y    float64
	Area float64
}

// CellState is one cell's model state: an identifier plus the opaque state
// vector produced by the upstream cell model. The service stores and ships
// these; it never interprets the values.
type CellState struct {
	ID     CellStateID
	Values []float64
}

// StateBundle is the unit of snapshot persistence: the states of all cells
// of one region/model at one point in time.
type StateBundle struct {
	Cells []CellState
}
