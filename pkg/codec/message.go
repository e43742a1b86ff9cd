package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hydrosight/tsexpr/pkg/domain"
)

// OpCode tags the operation a request asks for.
type OpCode uint8

const (
	OpEvaluate OpCode = iota + 1
	OpPercentiles
	OpClose
)

func (o OpCode) String() string {
	switch o {
	case OpEvaluate:
		return "evaluate"
	case OpPercentiles:
		return "percentiles"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ErrCode classifies a request failure on the wire.
type ErrCode uint8

const (
	ErrCodeNone ErrCode = iota
	ErrCodeDecode
	ErrCodeCycle
	ErrCodeUnbound
	ErrCodeMismatch
	ErrCodeConnLimit
	ErrCodeInternal
)

// wireVersion is the protocol version carried in every message header.
const wireVersion uint8 = 1

// MaxFrameSize bounds a single message; anything larger is treated as a
// protocol error rather than an allocation request.
const MaxFrameSize = 64 << 20

// Request is one client message.
type Request struct {
	Op          OpCode
	Vector      domain.Vector
	Period      domain.Period
	OutAxis     domain.FixedAxis // percentiles only
	Percentiles []int            // percentiles only; -1 means mean
}

// Response is one server message. On failure Code/Message are set and
// Vector is empty.
type Response struct {
	Code    ErrCode
	Message string
	Vector  domain.Vector
}

// Err converts a failed response into the matching taxonomy error, nil for a
// success response.
func (r *Response) Err() error {
	switch r.Code {
	case ErrCodeNone:
		return nil
	case ErrCodeDecode:
		return &domain.DecodeError{Reason: r.Message}
	case ErrCodeCycle:
		return domain.ErrCycle
	case ErrCodeUnbound:
		return &domain.UnboundRefError{ID: r.Message}
	case ErrCodeMismatch:
		return fmt.Errorf("resolver mismatch: %s", r.Message)
	case ErrCodeConnLimit:
		return domain.ErrConnectionLimit
	default:
		return fmt.Errorf("server error: %s", r.Message)
	}
}

// ClassifyErr maps an evaluation/binding error onto its wire code.
func ClassifyErr(err error) (ErrCode, string) {
	var unbound *domain.UnboundRefError
	var mismatch *domain.ResolverMismatchError
	var decodeErr *domain.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return ErrCodeDecode, decodeErr.Reason
	case errors.Is(err, domain.ErrCycle):
		return ErrCodeCycle, err.Error()
	case errors.As(err, &unbound):
		return ErrCodeUnbound, unbound.ID
	case errors.As(err, &mismatch):
		return ErrCodeMismatch, mismatch.Error()
	case errors.Is(err, domain.ErrConnectionLimit):
		return ErrCodeConnLimit, err.Error()
	default:
		return ErrCodeInternal, err.Error()
	}
}

// EncodeRequest serializes a request message body.
func EncodeRequest(req *Request) ([]byte, error) {
	e := newEncoder()
	e.byte(wireVersion)
	e.byte(uint8(req.Op))
	if req.Op == OpClose {
		return e.buf.Bytes(), nil
	}
	e.varint(int64(req.Period.Start))
	e.varint(int64(req.Period.End))
	if req.Op == OpPercentiles {
		e.axis(req.OutAxis)
		e.uvarint(uint64(len(req.Percentiles)))
		for _, p := range req.Percentiles {
			e.varint(int64(p))
		}
	}
	if err := domain.Validate(req.Vector...); err != nil {
		return nil, err
	}
	e.uvarint(uint64(len(req.Vector)))
	for _, n := range req.Vector {
		e.node(n)
	}
	return e.buf.Bytes(), nil
}

// DecodeRequest deserializes a request message body.
func DecodeRequest(data []byte) (*Request, error) {
	d := &decoder{data: data}
	ver, err := d.byte()
	if err != nil {
		return nil, err
	}
	if ver != wireVersion {
		return nil, d.fail("unsupported protocol version")
	}
	op, err := d.byte()
	if err != nil {
		return nil, err
	}
	req := &Request{Op: OpCode(op)}
	switch req.Op {
	case OpClose:
		return req, nil
	case OpEvaluate, OpPercentiles:
	default:
		return nil, d.fail("unknown operation tag")
	}
	start, err := d.varint()
	if err != nil {
		return nil, err
	}
	end, err := d.varint()
	if err != nil {
		return nil, err
	}
	req.Period = domain.Period{Start: domain.UtcTime(start), End: domain.UtcTime(end)}
	if !req.Period.Valid() {
		return nil, d.fail("invalid request period")
	}
	if req.Op == OpPercentiles {
		if req.OutAxis, err = d.axis(); err != nil {
			return nil, err
		}
		count, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if count > uint64(len(d.data)) {
			return nil, d.fail("percentile count exceeds payload")
		}
		req.Percentiles = make([]int, count)
		for i := range req.Percentiles {
			p, err := d.varint()
			if err != nil {
				return nil, err
			}
			req.Percentiles[i] = int(p)
		}
	}
	if req.Vector, err = d.vector(); err != nil {
		return nil, err
	}
	if d.off != int64(len(data)) {
		return nil, d.fail("trailing bytes after request")
	}
	return req, nil
}

// EncodeResponse serializes a response message body.
func EncodeResponse(resp *Response) ([]byte, error) {
	e := newEncoder()
	e.byte(wireVersion)
	e.byte(uint8(resp.Code))
	if resp.Code != ErrCodeNone {
		e.str(resp.Message)
		return e.buf.Bytes(), nil
	}
	if err := domain.Validate(resp.Vector...); err != nil {
		return nil, err
	}
	e.uvarint(uint64(len(resp.Vector)))
	for _, n := range resp.Vector {
		e.node(n)
	}
	return e.buf.Bytes(), nil
}

// DecodeResponse deserializes a response message body.
func DecodeResponse(data []byte) (*Response, error) {
	d := &decoder{data: data}
	ver, err := d.byte()
	if err != nil {
		return nil, err
	}
	if ver != wireVersion {
		return nil, d.fail("unsupported protocol version")
	}
	code, err := d.byte()
	if err != nil {
		return nil, err
	}
	resp := &Response{Code: ErrCode(code)}
	if resp.Code != ErrCodeNone {
		if resp.Message, err = d.str(); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if resp.Vector, err = d.vector(); err != nil {
		return nil, err
	}
	if d.off != int64(len(data)) {
		return nil, d.fail("trailing bytes after response")
	}
	return resp, nil
}

// WriteFrame writes a length-prefixed message to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds maximum %d", len(payload), MaxFrameSize)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed message from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, &domain.DecodeError{Reason: fmt.Sprintf("frame of %d bytes exceeds maximum %d", n, MaxFrameSize)}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
