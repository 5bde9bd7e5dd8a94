package domain

import "math"

// NegInf and PosInf are the sentinel bounds representing an unbounded
// interval edge.
const (
	NegInf = int64(math.MinInt64)
	PosInf = int64(math.MaxInt64)
)

// Interval is the numeric interval domain [lo, hi], with NegInf/PosInf
// sentinels standing in for unbounded edges and a separate bottom flag for
// the empty interval.
type Interval struct {
	bottom bool
	lo, hi int64
}

func IntervalBottom() Interval          { return Interval{bottom: true} }
func IntervalTop() Interval             { return Interval{lo: NegInf, hi: PosInf} }
func IntervalExact(v int64) Interval    { return Interval{lo: v, hi: v} }
func IntervalRange(lo, hi int64) Interval {
	if lo > hi {
		return IntervalBottom()
	}
	return Interval{lo: lo, hi: hi}
}

func (iv Interval) IsBottom() bool { return iv.bottom }
func (iv Interval) IsTop() bool    { return !iv.bottom && iv.lo == NegInf && iv.hi == PosInf }

// Bounds returns (lo, hi); undefined (zero values) when IsBottom.
func (iv Interval) Bounds() (int64, int64) { return iv.lo, iv.hi }

// AsExact returns the interval's single value and true if lo == hi.
func (iv Interval) AsExact() (int64, bool) {
	if !iv.bottom && iv.lo == iv.hi {
		return iv.lo, true
	}
	return 0, false
}

func (iv Interval) Equals(o Interval) bool {
	if iv.bottom != o.bottom {
		return false
	}
	return iv.bottom || (iv.lo == o.lo && iv.hi == o.hi)
}

func (iv Interval) Leq(o Interval) bool {
	if iv.bottom {
		return true
	}
	if o.bottom {
		return false
	}
	return o.lo <= iv.lo && iv.hi <= o.hi
}

func (iv Interval) Join(o Interval) Interval {
	if iv.bottom {
		return o
	}
	if o.bottom {
		return iv
	}
	return Interval{lo: minI64(iv.lo, o.lo), hi: maxI64(iv.hi, o.hi)}
}

func (iv Interval) Meet(o Interval) Interval {
	if iv.bottom || o.bottom {
		return IntervalBottom()
	}
	return IntervalRange(maxI64(iv.lo, o.lo), minI64(iv.hi, o.hi))
}

// Widen extrapolates: a bound that grew past the previous one snaps
// straight to infinity, guaranteeing termination over the unbounded
// integer lattice.
func (iv Interval) Widen(o Interval) Interval {
	if iv.bottom {
		return o
	}
	if o.bottom {
		return iv
	}
	lo, hi := iv.lo, iv.hi
	if o.lo < lo {
		lo = NegInf
	}
	if o.hi > hi {
		hi = PosInf
	}
	return Interval{lo: lo, hi: hi}
}

// Narrow recovers precision Widen discarded: an infinite bound is replaced
// by the corresponding finite bound from a later, more precise round.
func (iv Interval) Narrow(o Interval) Interval {
	if iv.bottom || o.bottom {
		return IntervalBottom()
	}
	lo, hi := iv.lo, iv.hi
	if lo == NegInf && o.lo != NegInf {
		lo = o.lo
	}
	if hi == PosInf && o.hi != PosInf {
		hi = o.hi
	}
	return IntervalRange(lo, hi)
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
