package domain

import (
	"errors"
	"testing"
)

func testSeries(n int, v float64) Series {
	axis := FixedAxis{Start: 0, Delta: 3600, N: n}
	return NewConstantSeries(axis, v, PointAverage)
}

func TestBound_Propagation(t *testing.T) {
	p := &Point{S: testSeries(3, 1)}
	r := &Ref{ID: "x"}
	axis := FixedAxis{Start: 0, Delta: 3600, N: 3}

	if !p.Bound() {
		t.Error("point must be bound")
	}
	if r.Bound() {
		t.Error("ref must be unbound")
	}

	mixed := NewBinOp(OpAdd, p, r, axis)
	if mixed.Bound() {
		t.Error("binop over an unbound ref must be unbound")
	}
	solid := NewBinOp(OpMul, p, p, axis)
	if !solid.Bound() {
		t.Error("binop over bound operands must be bound")
	}

	if (&Average{Axis: axis, Child: r}).Bound() {
		t.Error("average over ref must be unbound")
	}
	if !(&TimeShift{Child: p, Dt: 60}).Bound() {
		t.Error("shift over point must be bound")
	}
}

func TestValidate_SharedChildrenOK(t *testing.T) {
	shared := &Point{S: testSeries(3, 2)}
	axis := FixedAxis{Start: 0, Delta: 3600, N: 3}
	a := &Average{Axis: axis, Child: shared}
	b := &TimeShift{Child: shared, Dt: 3600}
	root := NewBinOp(OpAdd, a, b, axis)

	if err := Validate(root); err != nil {
		t.Fatalf("diamond-shaped DAG rejected: %v", err)
	}
}

func TestValidate_CycleRejected(t *testing.T) {
	axis := FixedAxis{Start: 0, Delta: 3600, N: 3}
	p := &Point{S: testSeries(3, 1)}

	// Close a cycle by mutation; construction alone cannot create one.
	n := NewBinOp(OpAdd, p, p, axis)
	n.R = n

	if err := Validate(n); !errors.Is(err, ErrCycle) {
		t.Fatalf("Validate = %v, want ErrCycle", err)
	}

	// Indirect cycle through an intermediate node.
	shift := &TimeShift{Child: p, Dt: 60}
	m := NewBinOp(OpSub, shift, p, axis)
	shift.Child = m
	if err := Validate(m); !errors.Is(err, ErrCycle) {
		t.Fatalf("Validate = %v, want ErrCycle for indirect cycle", err)
	}
}
