package domain

import "fmt"

// Node is one variant of the expression graph. The set of variants is closed:
// only the types in this file implement it, which keeps evaluation and codec
// dispatch exhaustive. Children are shared by pointer and immutable after
// construction, so a graph is a DAG by construction; Validate guards the few
// places (decode, hand-built graphs) where a cycle could still be smuggled in.
type Node interface {
	// Bound reports whether the node and all its descendants carry concrete
	// data, i.e. no unresolved Ref remains below it.
	Bound() bool

	isNode()
}

// Op identifies a binary arithmetic operator.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMin
	OpMax
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ConvolvePolicy states how convolution treats taps that fall before the
// start of the child series.
type ConvolvePolicy uint8

const (
	// ConvolveZero pads out-of-range samples with 0.0.
	ConvolveZero ConvolvePolicy = iota
	// ConvolveSkip drops the leading output steps that lack full kernel
	// support, shortening the result instead of padding it.
	ConvolveSkip
)

// Point wraps a concrete point series. Terminal, always bound.
type Point struct {
	S Series
}

// Ref is a symbolic reference to a series only the server side can resolve.
// Terminal, unbound until substituted.
type Ref struct {
	ID string
}

// Average resamples its child onto Axis, averaging over each target step.
type Average struct {
	Axis  FixedAxis
	Child Node
}

// Integral resamples its child onto Axis, integrating value*dt over each
// target step.
type Integral struct {
	Axis  FixedAxis
	Child Node
}

// Accumulate produces the running integral of its child from the start of
// Axis; the first sample is always 0.
type Accumulate struct {
	Axis  FixedAxis
	Child Node
}

// TimeShift moves its child Dt seconds forward in time (negative Dt moves it
// back).
type TimeShift struct {
	Child Node
	Dt    int64
}

// Periodic generates values from a fixed repeating pattern. Terminal.
type Periodic struct {
	T0      UtcTime
	Delta   int64
	Pattern []float64
	Interp  PointInterpretation
}

// Convolve applies a fixed weight kernel to its child with the given
// boundary policy. The child must evaluate to a fixed-step series.
type Convolve struct {
	Child  Node
	Kernel []float64
	Policy ConvolvePolicy
}

// BinOp combines two series element-wise on a stored result axis. AllBound
// caches the bound state of both operands at construction time, so the wire
// form and repeated Bound checks stay cheap.
type BinOp struct {
	Op       Op
	L, R     Node
	Axis     FixedAxis
	AllBound bool
}

// NewBinOp builds a BinOp with the cached bound flag computed.
func NewBinOp(op Op, l, r Node, axis FixedAxis) *BinOp {
	return &BinOp{Op: op, L: l, R: r, Axis: axis, AllBound: l.Bound() && r.Bound()}
}

// BinOpScalar is series ⊗ scalar.
type BinOpScalar struct {
	Op Op
	L  Node
	R  float64
}

// ScalarBinOp is scalar ⊗ series.
type ScalarBinOp struct {
	Op Op
	L  float64
	R  Node
}

func (*Point) isNode()       {}
func (*Ref) isNode()         {}
func (*Average) isNode()     {}
func (*Integral) isNode()    {}
func (*Accumulate) isNode()  {}
func (*TimeShift) isNode()   {}
func (*Periodic) isNode()    {}
func (*Convolve) isNode()    {}
func (*BinOp) isNode()       {}
func (*BinOpScalar) isNode() {}
func (*ScalarBinOp) isNode() {}

func (*Point) Bound() bool         { return true }
func (*Ref) Bound() bool           { return false }
func (n *Average) Bound() bool     { return n.Child.Bound() }
func (n *Integral) Bound() bool    { return n.Child.Bound() }
func (n *Accumulate) Bound() bool  { return n.Child.Bound() }
func (n *TimeShift) Bound() bool   { return n.Child.Bound() }
func (*Periodic) Bound() bool      { return true }
func (n *Convolve) Bound() bool    { return n.Child.Bound() }
func (n *BinOp) Bound() bool       { return n.AllBound }
func (n *BinOpScalar) Bound() bool { return n.L.Bound() }
func (n *ScalarBinOp) Bound() bool { return n.R.Bound() }

// Vector is an ordered sequence of top-level expressions evaluated together.
// Elements may share subexpressions.
type Vector []Node

// Bound reports whether every element is fully bound.
func (v Vector) Bound() bool {
	for _, n := range v {
		if !n.Bound() {
			return false
		}
	}
	return true
}

// Children returns the direct children of n. Terminals return nil.
func Children(n Node) []Node {
	switch t := n.(type) {
	case *Average:
		return []Node{t.Child}
	case *Integral:
		return []Node{t.Child}
	case *Accumulate:
		return []Node{t.Child}
	case *TimeShift:
		return []Node{t.Child}
	case *Convolve:
		return []Node{t.Child}
	case *BinOp:
		return []Node{t.L, t.R}
	case *BinOpScalar:
		return []Node{t.L}
	case *ScalarBinOp:
		return []Node{t.R}
	default:
		return nil
	}
}

// Validate checks that the graph under each root is acyclic. Shared children
// are fine (and expected); a node reachable from itself is ErrCycle.
func Validate(roots ...Node) error {
	const (
		inProgress = 1
		done       = 2
	)
	state := make(map[Node]uint8)
	var walk func(n Node) error
	walk = func(n Node) error {
		switch state[n] {
		case done:
			return nil
		case inProgress:
			return ErrCycle
		}
		state[n] = inProgress
		for _, c := range Children(n) {
			if err := walk(c); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}
	for _, r := range roots {
		if r == nil {
			continue
		}
		if err := walk(r); err != nil {
			return err
		}
	}
	return nil
}
