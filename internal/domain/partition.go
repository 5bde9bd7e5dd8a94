package domain

// PartitionValue is the constraint a HashedAbstractPartition's value
// domain must satisfy: enough of Domain to join/meet/compare pointwise.
type PartitionValue[D any] interface {
	IsTop() bool
	Leq(other D) bool
	Join(other D) D
	Meet(other D) D
}

// HashedAbstractPartition maps keys to a bound of D, treating any key
// absent from the map as bound to D's Top: storing or dropping a Top
// binding are equivalent, which is why Set below prunes them. This is the
// representation ArrayDomain uses for per-index facts.
type HashedAbstractPartition[K comparable, D PartitionValue[D]] struct {
	bottom   bool
	top      D
	bindings map[K]D
}

func NewHashedPartition[K comparable, D PartitionValue[D]](top D) HashedAbstractPartition[K, D] {
	return HashedAbstractPartition[K, D]{top: top, bindings: make(map[K]D)}
}

func (p HashedAbstractPartition[K, D]) Bottom() HashedAbstractPartition[K, D] {
	return HashedAbstractPartition[K, D]{bottom: true, top: p.top}
}

func (p HashedAbstractPartition[K, D]) IsBottom() bool { return p.bottom }
func (p HashedAbstractPartition[K, D]) IsTop() bool    { return !p.bottom && len(p.bindings) == 0 }

// Get returns the binding for k, or Top if k has no explicit binding.
func (p HashedAbstractPartition[K, D]) Get(k K) D {
	if v, ok := p.bindings[k]; ok {
		return v
	}
	return p.top
}

// Set returns a copy of p with k bound to v (or unbound, if v is Top).
func (p HashedAbstractPartition[K, D]) Set(k K, v D) HashedAbstractPartition[K, D] {
	out := p.clone()
	if v.IsTop() {
		delete(out.bindings, k)
	} else {
		out.bindings[k] = v
	}
	return out
}

// Keys returns every key with a non-Top explicit binding, in no
// particular order.
func (p HashedAbstractPartition[K, D]) Keys() []K {
	keys := make([]K, 0, len(p.bindings))
	for k := range p.bindings {
		keys = append(keys, k)
	}
	return keys
}

func (p HashedAbstractPartition[K, D]) clone() HashedAbstractPartition[K, D] {
	nb := make(map[K]D, len(p.bindings))
	for k, v := range p.bindings {
		nb[k] = v
	}
	return HashedAbstractPartition[K, D]{bottom: p.bottom, top: p.top, bindings: nb}
}

func (p HashedAbstractPartition[K, D]) keySet(o HashedAbstractPartition[K, D]) map[K]bool {
	keys := make(map[K]bool, len(p.bindings)+len(o.bindings))
	for k := range p.bindings {
		keys[k] = true
	}
	for k := range o.bindings {
		keys[k] = true
	}
	return keys
}

func (p HashedAbstractPartition[K, D]) Leq(o HashedAbstractPartition[K, D]) bool {
	if p.bottom {
		return true
	}
	if o.bottom {
		return false
	}
	for k := range p.keySet(o) {
		if !p.Get(k).Leq(o.Get(k)) {
			return false
		}
	}
	return true
}

func (p HashedAbstractPartition[K, D]) Join(o HashedAbstractPartition[K, D]) HashedAbstractPartition[K, D] {
	if p.bottom {
		return o
	}
	if o.bottom {
		return p
	}
	out := NewHashedPartition[K, D](p.top)
	for k := range p.keySet(o) {
		out = out.Set(k, p.Get(k).Join(o.Get(k)))
	}
	return out
}

func (p HashedAbstractPartition[K, D]) Meet(o HashedAbstractPartition[K, D]) HashedAbstractPartition[K, D] {
	if p.bottom || o.bottom {
		return p.Bottom()
	}
	out := NewHashedPartition[K, D](p.top)
	for k := range p.keySet(o) {
		out = out.Set(k, p.Get(k).Meet(o.Get(k)))
	}
	return out
}

// Widen joins pointwise; callers whose value domain D has infinite height
// should instead drive convergence by widening the values they Set rather
// than relying on this to do it for them.
func (p HashedAbstractPartition[K, D]) Widen(o HashedAbstractPartition[K, D]) HashedAbstractPartition[K, D] {
	return p.Join(o)
}

func (p HashedAbstractPartition[K, D]) Narrow(o HashedAbstractPartition[K, D]) HashedAbstractPartition[K, D] {
	return p.Meet(o)
}
