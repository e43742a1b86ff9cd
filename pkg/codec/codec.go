// Package codec implements the tagged binary encoding for expression graphs,
// point series and state snapshots.
//
// Every node is written as (type tag, version, fields...). A node that occurs
// more than once in a graph is written once and referenced by its index in an
// implicit table built in encode order, so shared subexpressions survive a
// round trip as shared pointers. Indexes may only point backwards; a forward
// or out-of-range index is rejected at decode time, which makes an encoded
// cycle unrepresentable.
package codec

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/hydrosight/tsexpr/pkg/domain"
)

// Node type tags. Tag 0 is reserved for back-references into the shared-node
// table. Tags are wire contract: never reorder, only append.
const (
	tagShared uint8 = iota
	tagPoint
	tagRef
	tagAverage
	tagIntegral
	tagAccumulate
	tagTimeShift
	tagPeriodic
	tagConvolve
	tagBinOp
	tagBinOpScalar
	tagScalarBinOp
)

// nodeVersion is written after every tag so individual variants can evolve
// independently of the frame version.
const nodeVersion uint8 = 1

type encoder struct {
	buf  bytes.Buffer
	seen map[domain.Node]uint64
}

func newEncoder() *encoder {
	return &encoder{seen: make(map[domain.Node]uint64)}
}

func (e *encoder) byte(b uint8)    { e.buf.WriteByte(b) }
func (e *encoder) uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf.Write(tmp[:n])
}
func (e *encoder) varint(v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	e.buf.Write(tmp[:n])
}
func (e *encoder) float(f float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	e.buf.Write(tmp[:])
}
func (e *encoder) str(s string) {
	e.uvarint(uint64(len(s)))
	e.buf.WriteString(s)
}
func (e *encoder) floats(fs []float64) {
	e.uvarint(uint64(len(fs)))
	for _, f := range fs {
		e.float(f)
	}
}
func (e *encoder) axis(a domain.FixedAxis) {
	e.varint(int64(a.Start))
	e.varint(a.Delta)
	e.uvarint(uint64(a.N))
}
func (e *encoder) series(s domain.Series) {
	e.axis(s.Axis)
	e.byte(uint8(s.Interp))
	e.floats(s.Values)
}

func (e *encoder) node(n domain.Node) {
	if idx, ok := e.seen[n]; ok {
		e.byte(tagShared)
		e.uvarint(idx)
		return
	}
	switch t := n.(type) {
	case *domain.Point:
		e.byte(tagPoint)
		e.byte(nodeVersion)
		e.series(t.S)
	case *domain.Ref:
		e.byte(tagRef)
		e.byte(nodeVersion)
		e.str(t.ID)
	case *domain.Average:
		e.byte(tagAverage)
		e.byte(nodeVersion)
		e.axis(t.Axis)
		e.node(t.Child)
	case *domain.Integral:
		e.byte(tagIntegral)
		e.byte(nodeVersion)
		e.axis(t.Axis)
		e.node(t.Child)
	case *domain.Accumulate:
		e.byte(tagAccumulate)
		e.byte(nodeVersion)
		e.axis(t.Axis)
		e.node(t.Child)
	case *domain.TimeShift:
		e.byte(tagTimeShift)
		e.byte(nodeVersion)
		e.varint(t.Dt)
		e.node(t.Child)
	case *domain.Periodic:
		e.byte(tagPeriodic)
		e.byte(nodeVersion)
		e.varint(int64(t.T0))
		e.varint(t.Delta)
		e.byte(uint8(t.Interp))
		e.floats(t.Pattern)
	case *domain.Convolve:
		e.byte(tagConvolve)
		e.byte(nodeVersion)
		e.byte(uint8(t.Policy))
		e.floats(t.Kernel)
		e.node(t.Child)
	case *domain.BinOp:
		e.byte(tagBinOp)
		e.byte(nodeVersion)
		e.byte(uint8(t.Op))
		e.axis(t.Axis)
		if t.AllBound {
			e.byte(1)
		} else {
			e.byte(0)
		}
		e.node(t.L)
		e.node(t.R)
	case *domain.BinOpScalar:
		e.byte(tagBinOpScalar)
		e.byte(nodeVersion)
		e.byte(uint8(t.Op))
		e.float(t.R)
		e.node(t.L)
	case *domain.ScalarBinOp:
		e.byte(tagScalarBinOp)
		e.byte(nodeVersion)
		e.byte(uint8(t.Op))
		e.float(t.L)
		e.node(t.R)
	}
	// Index assignment is post-order: a node only becomes referenceable once
	// its whole subtree is written, which keeps wire indexes backward-only.
	e.seen[n] = uint64(len(e.seen))
}

type decoder struct {
	data  []byte
	off   int64
	nodes []domain.Node
}

func (d *decoder) fail(reason string) error {
	return &domain.DecodeError{Offset: d.off, Reason: reason}
}

func (d *decoder) byte() (uint8, error) {
	if d.off >= int64(len(d.data)) {
		return 0, d.fail("unexpected end of data")
	}
	b := d.data[d.off]
	d.off++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.data[d.off:])
	if n <= 0 {
		return 0, d.fail("bad unsigned varint")
	}
	d.off += int64(n)
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.data[d.off:])
	if n <= 0 {
		return 0, d.fail("bad signed varint")
	}
	d.off += int64(n)
	return v, nil
}

func (d *decoder) float() (float64, error) {
	if d.off+8 > int64(len(d.data)) {
		return 0, d.fail("truncated float")
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.data[d.off:]))
	d.off += 8
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	if d.off+int64(n) > int64(len(d.data)) {
		return "", d.fail("truncated string")
	}
	s := string(d.data[d.off : d.off+int64(n)])
	d.off += int64(n)
	return s, nil
}

func (d *decoder) floats() ([]float64, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	// Divide instead of multiplying: n*8 can wrap around for a hostile count.
	if n > uint64(int64(len(d.data))-d.off)/8 {
		return nil, d.fail("value count exceeds payload")
	}
	fs := make([]float64, n)
	for i := range fs {
		if fs[i], err = d.float(); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func (d *decoder) axis() (domain.FixedAxis, error) {
	start, err := d.varint()
	if err != nil {
		return domain.FixedAxis{}, err
	}
	delta, err := d.varint()
	if err != nil {
		return domain.FixedAxis{}, err
	}
	n, err := d.uvarint()
	if err != nil {
		return domain.FixedAxis{}, err
	}
	if n > domain.MaxAxisSteps {
		return domain.FixedAxis{}, d.fail("axis cardinality exceeds limit")
	}
	a, err := domain.NewFixedAxis(domain.UtcTime(start), delta, int(n))
	if err != nil {
		return domain.FixedAxis{}, d.fail(err.Error())
	}
	return a, nil
}

func (d *decoder) series() (domain.Series, error) {
	a, err := d.axis()
	if err != nil {
		return domain.Series{}, err
	}
	interp, err := d.byte()
	if err != nil {
		return domain.Series{}, err
	}
	if interp > uint8(domain.PointAverage) {
		return domain.Series{}, d.fail("unknown point interpretation")
	}
	values, err := d.floats()
	if err != nil {
		return domain.Series{}, err
	}
	s, err := domain.NewSeries(a, values, domain.PointInterpretation(interp))
	if err != nil {
		return domain.Series{}, d.fail(err.Error())
	}
	return s, nil
}

func (d *decoder) node() (domain.Node, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	if tag == tagShared {
		idx, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		// Backward references only. Anything else would be the on-wire shape
		// of a cycle (or garbage), and both are rejected here.
		if idx >= uint64(len(d.nodes)) {
			return nil, domain.ErrCycle
		}
		return d.nodes[idx], nil
	}
	ver, err := d.byte()
	if err != nil {
		return nil, err
	}
	if ver != nodeVersion {
		return nil, d.fail("unsupported node version")
	}

	var n domain.Node
	switch tag {
	case tagPoint:
		s, err := d.series()
		if err != nil {
			return nil, err
		}
		n = &domain.Point{S: s}
	case tagRef:
		id, err := d.str()
		if err != nil {
			return nil, err
		}
		n = &domain.Ref{ID: id}
	case tagAverage:
		a, err := d.axis()
		if err != nil {
			return nil, err
		}
		child, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.Average{Axis: a, Child: child}
	case tagIntegral:
		a, err := d.axis()
		if err != nil {
			return nil, err
		}
		child, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.Integral{Axis: a, Child: child}
	case tagAccumulate:
		a, err := d.axis()
		if err != nil {
			return nil, err
		}
		child, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.Accumulate{Axis: a, Child: child}
	case tagTimeShift:
		dt, err := d.varint()
		if err != nil {
			return nil, err
		}
		child, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.TimeShift{Child: child, Dt: dt}
	case tagPeriodic:
		t0, err := d.varint()
		if err != nil {
			return nil, err
		}
		delta, err := d.varint()
		if err != nil {
			return nil, err
		}
		if delta <= 0 {
			return nil, d.fail("periodic step must be positive")
		}
		interp, err := d.byte()
		if err != nil {
			return nil, err
		}
		if interp > uint8(domain.PointAverage) {
			return nil, d.fail("unknown point interpretation")
		}
		pattern, err := d.floats()
		if err != nil {
			return nil, err
		}
		n = &domain.Periodic{T0: domain.UtcTime(t0), Delta: delta, Pattern: pattern, Interp: domain.PointInterpretation(interp)}
	case tagConvolve:
		policy, err := d.byte()
		if err != nil {
			return nil, err
		}
		if policy > uint8(domain.ConvolveSkip) {
			return nil, d.fail("unknown convolution policy")
		}
		kernel, err := d.floats()
		if err != nil {
			return nil, err
		}
		child, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.Convolve{Child: child, Kernel: kernel, Policy: domain.ConvolvePolicy(policy)}
	case tagBinOp:
		op, err := d.byte()
		if err != nil {
			return nil, err
		}
		a, err := d.axis()
		if err != nil {
			return nil, err
		}
		bound, err := d.byte()
		if err != nil {
			return nil, err
		}
		l, err := d.node()
		if err != nil {
			return nil, err
		}
		r, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.BinOp{Op: domain.Op(op), L: l, R: r, Axis: a, AllBound: bound != 0}
	case tagBinOpScalar:
		op, err := d.byte()
		if err != nil {
			return nil, err
		}
		scalar, err := d.float()
		if err != nil {
			return nil, err
		}
		l, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.BinOpScalar{Op: domain.Op(op), L: l, R: scalar}
	case tagScalarBinOp:
		op, err := d.byte()
		if err != nil {
			return nil, err
		}
		scalar, err := d.float()
		if err != nil {
			return nil, err
		}
		r, err := d.node()
		if err != nil {
			return nil, err
		}
		n = &domain.ScalarBinOp{Op: domain.Op(op), L: scalar, R: r}
	default:
		return nil, d.fail("unknown node tag")
	}

	d.nodes = append(d.nodes, n)
	return n, nil
}

// EncodeNode serializes a single expression graph.
func EncodeNode(n domain.Node) ([]byte, error) {
	if err := domain.Validate(n); err != nil {
		return nil, err
	}
	e := newEncoder()
	e.node(n)
	return e.buf.Bytes(), nil
}

// DecodeNode deserializes a single expression graph.
func DecodeNode(data []byte) (domain.Node, error) {
	d := &decoder{data: data}
	n, err := d.node()
	if err != nil {
		return nil, err
	}
	if d.off != int64(len(data)) {
		return nil, d.fail("trailing bytes after node")
	}
	return n, nil
}

// EncodeVector serializes an expression vector, preserving subexpressions
// shared across elements.
func EncodeVector(v domain.Vector) ([]byte, error) {
	if err := domain.Validate(v...); err != nil {
		return nil, err
	}
	e := newEncoder()
	e.uvarint(uint64(len(v)))
	for _, n := range v {
		e.node(n)
	}
	return e.buf.Bytes(), nil
}

// DecodeVector deserializes an expression vector.
func DecodeVector(data []byte) (domain.Vector, error) {
	d := &decoder{data: data}
	v, err := d.vector()
	if err != nil {
		return nil, err
	}
	if d.off != int64(len(data)) {
		return nil, d.fail("trailing bytes after vector")
	}
	return v, nil
}

func (d *decoder) vector() (domain.Vector, error) {
	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(d.data)) {
		return nil, d.fail("vector length exceeds payload")
	}
	v := make(domain.Vector, 0, count)
	for i := uint64(0); i < count; i++ {
		n, err := d.node()
		if err != nil {
			return nil, err
		}
		v = append(v, n)
	}
	return v, nil
}

// EncodeSeries serializes a bare point series (used by the stores).
func EncodeSeries(s domain.Series) []byte {
	e := newEncoder()
	e.series(s)
	return e.buf.Bytes()
}

// DecodeSeries deserializes a bare point series.
func DecodeSeries(data []byte) (domain.Series, error) {
	d := &decoder{data: data}
	s, err := d.series()
	if err != nil {
		return domain.Series{}, err
	}
	if d.off != int64(len(data)) {
		return domain.Series{}, d.fail("trailing bytes after series")
	}
	return s, nil
}

// EncodeStateBundle serializes a cell-state snapshot bundle.
func EncodeStateBundle(b domain.StateBundle) []byte {
	e := newEncoder()
	e.byte(nodeVersion)
	e.uvarint(uint64(len(b.Cells)))
	for _, c := range b.Cells {
		e.varint(c.ID.Cid)
		e.float(c.ID.X)
		e.float(c.ID.Y)
		e.float(c.ID.Area)
		e.floats(c.Values)
	}
	return e.buf.Bytes()
}

// DecodeStateBundle deserializes a cell-state snapshot bundle.
func DecodeStateBundle(data []byte) (domain.StateBundle, error) {
	d := &decoder{data: data}
	ver, err := d.byte()
	if err != nil {
		return domain.StateBundle{}, err
	}
	if ver != nodeVersion {
		return domain.StateBundle{}, d.fail("unsupported snapshot version")
	}
	count, err := d.uvarint()
	if err != nil {
		return domain.StateBundle{}, err
	}
	if count > uint64(len(d.data)) {
		return domain.StateBundle{}, d.fail("cell count exceeds payload")
	}
	cells := make([]domain.CellState, 0, count)
	for i := uint64(0); i < count; i++ {
		var c domain.CellState
		if c.ID.Cid, err = d.varint(); err != nil {
			return domain.StateBundle{}, err
		}
		if c.ID.X, err = d.float(); err != nil {
			return domain.StateBundle{}, err
		}
		if c.ID.Y, err = d.float(); err != nil {
			return domain.StateBundle{}, err
		}
		if c.ID.Area, err = d.float(); err != nil {
			return domain.StateBundle{}, err
		}
		if c.Values, err = d.floats(); err != nil {
			return domain.StateBundle{}, err
		}
		cells = append(cells, c)
	}
	return domain.StateBundle{Cells: cells}, nil
}
