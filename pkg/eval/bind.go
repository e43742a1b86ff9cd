package eval

import (
	"context"

	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// CollectRefs returns the distinct unresolved identifiers reachable from the
// roots, in first-seen depth-first order. Shared subtrees are visited once.
func CollectRefs(roots ...domain.Node) []string {
	var ids []string
	seen := make(map[string]struct{})
	visited := make(map[domain.Node]struct{})
	var walk func(n domain.Node)
	walk = func(n domain.Node) {
		if _, ok := visited[n]; ok {
			return
		}
		visited[n] = struct{}{}
		if n.Bound() {
			// Nothing unresolved below a bound node.
			return
		}
		if ref, ok := n.(*domain.Ref); ok {
			if _, dup := seen[ref.ID]; !dup {
				seen[ref.ID] = struct{}{}
				ids = append(ids, ref.ID)
			}
			return
		}
		for _, c := range domain.Children(n) {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return ids
}

// Bind resolves every unresolved reference in v for the given period.
//
// The resolver is invoked at most once per call, with the deduplicated
// identifier list; a count mismatch between ask and answer is a
// ResolverMismatchError. The input vector is never mutated: binding rebuilds
// only the paths leading to a resolved reference and shares every unaffected
// subtree with the input (copy-on-substitution). A fully bound vector is
// returned unchanged with zero resolver invocations.
func Bind(ctx context.Context, v domain.Vector, period domain.Period, resolver ports.Resolver) (domain.Vector, error) {
	ids := CollectRefs(v...)
	if len(ids) == 0 {
		return v, nil
	}
	if resolver == nil {
		return nil, domain.ErrNoResolver
	}
	series, err := resolver.Resolve(ctx, ids, period)
	if err != nil {
		return nil, err
	}
	if len(series) != len(ids) {
		return nil, &domain.ResolverMismatchError{Want: len(ids), Got: len(series)}
	}
	repl := make(map[string]domain.Series, len(ids))
	for i, id := range ids {
		repl[id] = series[i]
	}
	memo := make(map[domain.Node]domain.Node)
	out := make(domain.Vector, len(v))
	for i, n := range v {
		out[i] = substitute(n, repl, memo)
	}
	return out, nil
}

// substitute rebuilds the path to each resolved Ref, returning the original
// node wherever nothing below it changed.
func substitute(n domain.Node, repl map[string]domain.Series, memo map[domain.Node]domain.Node) domain.Node {
	if n.Bound() {
		return n
	}
	if m, ok := memo[n]; ok {
		return m
	}
	var out domain.Node
	switch t := n.(type) {
	case *domain.Ref:
		if s, ok := repl[t.ID]; ok {
			out = &domain.Point{S: s}
		} else {
			out = t
		}
	case *domain.Average:
		out = &domain.Average{Axis: t.Axis, Child: substitute(t.Child, repl, memo)}
	case *domain.Integral:
		out = &domain.Integral{Axis: t.Axis, Child: substitute(t.Child, repl, memo)}
	case *domain.Accumulate:
		out = &domain.Accumulate{Axis: t.Axis, Child: substitute(t.Child, repl, memo)}
	case *domain.TimeShift:
		out = &domain.TimeShift{Child: substitute(t.Child, repl, memo), Dt: t.Dt}
	case *domain.Convolve:
		out = &domain.Convolve{Child: substitute(t.Child, repl, memo), Kernel: t.Kernel, Policy: t.Policy}
	case *domain.BinOp:
		// NewBinOp refreshes the cached bound flag after substitution.
		out = domain.NewBinOp(t.Op, substitute(t.L, repl, memo), substitute(t.R, repl, memo), t.Axis)
	case *domain.BinOpScalar:
		out = &domain.BinOpScalar{Op: t.Op, L: substitute(t.L, repl, memo), R: t.R}
	case *domain.ScalarBinOp:
		out = &domain.ScalarBinOp{Op: t.Op, L: t.L, R: substitute(t.R, repl, memo)}
	default:
		out = n
	}
	memo[n] = out
	return out
}
