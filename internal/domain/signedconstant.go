package domain

// SignedConstant is a reduced product of Sign and Interval: whichever
// component is more precise tightens the other, so a SignedConstant that
// has collapsed to a single point also reports an exact Sign and
// AsExact value.
type SignedConstant struct {
	bottom   bool
	sign     Sign
	interval Interval
}

func SignedConstantBottom() SignedConstant {
	return SignedConstant{bottom: true, sign: SignBottom, interval: IntervalBottom()}
}

func SignedConstantTop() SignedConstant {
	return SignedConstant{sign: SignTop, interval: IntervalTop()}
}

func SignedConstantExact(v int64) SignedConstant {
	return SignedConstant{sign: SignOf(v), interval: IntervalExact(v)}
}

func SignedConstantOfSign(s Sign) SignedConstant {
	sc := SignedConstant{sign: s, interval: IntervalTop()}
	return sc.reduce()
}

// reduce tightens the interval component using whatever the sign component
// already rules out, and vice versa; this is the one place the product's
// two components talk to each other.
func (sc SignedConstant) reduce() SignedConstant {
	if sc.bottom {
		return sc
	}
	switch sc.sign {
	case SignNeg:
		sc.interval = sc.interval.Meet(IntervalRange(NegInf, -1))
	case SignZero:
		sc.interval = sc.interval.Meet(IntervalExact(0))
	case SignPos:
		sc.interval = sc.interval.Meet(IntervalRange(1, PosInf))
	}
	if sc.interval.IsBottom() {
		return SignedConstantBottom()
	}
	if v, ok := sc.interval.AsExact(); ok {
		sc.sign = SignOf(v)
	}
	return sc
}

func (sc SignedConstant) IsBottom() bool { return sc.bottom }
func (sc SignedConstant) IsTop() bool    { return !sc.bottom && sc.sign == SignTop && sc.interval.IsTop() }

// AsExact returns the known exact value and true when the interval has
// collapsed to a single point.
func (sc SignedConstant) AsExact() (int64, bool) { return sc.interval.AsExact() }

func (sc SignedConstant) Sign() Sign          { return sc.sign }
func (sc SignedConstant) Interval() Interval  { return sc.interval }

func (sc SignedConstant) Equals(o SignedConstant) bool {
	if sc.bottom != o.bottom {
		return false
	}
	return sc.bottom || (sc.sign == o.sign && sc.interval.Equals(o.interval))
}

func (sc SignedConstant) Leq(o SignedConstant) bool {
	if sc.bottom {
		return true
	}
	if o.bottom {
		return false
	}
	return sc.sign.Leq(o.sign) && sc.interval.Leq(o.interval)
}

func (sc SignedConstant) Join(o SignedConstant) SignedConstant {
	if sc.bottom {
		return o
	}
	if o.bottom {
		return sc
	}
	return SignedConstant{sign: sc.sign.Join(o.sign), interval: sc.interval.Join(o.interval)}.reduce()
}

func (sc SignedConstant) Meet(o SignedConstant) SignedConstant {
	if sc.bottom || o.bottom {
		return SignedConstantBottom()
	}
	return SignedConstant{sign: sc.sign.Meet(o.sign), interval: sc.interval.Meet(o.interval)}.reduce()
}

func (sc SignedConstant) Widen(o SignedConstant) SignedConstant {
	if sc.bottom {
		return o
	}
	if o.bottom {
		return sc
	}
	return SignedConstant{sign: sc.sign.Widen(o.sign), interval: sc.interval.Widen(o.interval)}.reduce()
}

func (sc SignedConstant) Narrow(o SignedConstant) SignedConstant {
	if sc.bottom || o.bottom {
		return SignedConstantBottom()
	}
	return SignedConstant{sign: sc.sign.Narrow(o.sign), interval: sc.interval.Narrow(o.interval)}.reduce()
}
