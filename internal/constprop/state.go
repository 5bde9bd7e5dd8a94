// Package constprop implements constant propagation over the editable
// CFG: a combiner of per-opcode sub-analyzers shares one abstract register
// environment, an optional whole-program state feeds facts back into it,
// and a transform pass folds the results back into the instruction stream.
package constprop

import (
	"dexopt/internal/cfg"
	"dexopt/internal/domain"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// heapPtr is the abstract address of a heap allocation: the defining
// NEW_ARRAY/NEW_INSTANCE/FILLED_NEW_ARRAY item itself, used as the key
// into the per-allocation-site partitions below. Two allocations are the
// same abstract object only when they are literally the same item.
type heapPtr = *item.Item

// RegEnv tracks the SignedConstant bound to every primitive register.
type RegEnv = domain.HashedAbstractPartition[ir.Reg, domain.SignedConstant]

// ObjFact extends NewObjectDomain with the identity of the allocating
// item: the Local Array / Heap Escape sub-analyzers need to resolve an
// array-typed register all the way back to its heap partition entry, not
// just its shape. Two facts with different Ptr join to an imprecise
// (Ptr == nil) fact of the same shape, mirroring how upstream collapses
// allocation-site identity once two distinct sites may reach a use.
type ObjFact struct {
	domain.NewObjectDomain
	Ptr heapPtr
}

func objFactOf(d domain.NewObjectDomain, ptr heapPtr) ObjFact { return ObjFact{d, ptr} }

func (f ObjFact) IsTop() bool { return f.NewObjectDomain.IsTop() }

func (f ObjFact) Leq(o ObjFact) bool {
	return f.NewObjectDomain.Leq(o.NewObjectDomain) && (o.Ptr == nil || f.Ptr == o.Ptr)
}

func (f ObjFact) Join(o ObjFact) ObjFact {
	joined := f.NewObjectDomain.Join(o.NewObjectDomain)
	if f.Ptr == o.Ptr {
		return ObjFact{joined, f.Ptr}
	}
	return ObjFact{joined, nil}
}

func (f ObjFact) Meet(o ObjFact) ObjFact {
	met := f.NewObjectDomain.Meet(o.NewObjectDomain)
	if f.Ptr == o.Ptr {
		return ObjFact{met, f.Ptr}
	}
	return ObjFact{met, nil}
}

// ObjEnv tracks the allocation-site fact bound to every object-valued
// register.
type ObjEnv = domain.HashedAbstractPartition[ir.Reg, ObjFact]

// ArrayHeap tracks, per allocation site, the ArrayDomain describing the
// array's known length and element contents.
type ArrayHeap = domain.HashedAbstractPartition[heapPtr, domain.ArrayDomain]

// FieldEnv tracks the SignedConstant currently known for a field, scoped
// by the Clinit/Init sub-analyzers to the fields of the method's own
// class.
type FieldEnv = domain.HashedAbstractPartition[ir.FieldRef, domain.SignedConstant]

// StrEnv tracks the exact CONST_STRING value bound to a register, and
// ClassEnv the exact CONST_CLASS value — both are the flat
// ConstantAbstractDomain lattice, kept separate from RegEnv because a
// string or class reference isn't a SignedConstant.
type StrEnv = domain.HashedAbstractPartition[ir.Reg, domain.StringDomain]
type ClassEnv = domain.HashedAbstractPartition[ir.Reg, domain.ConstantClassDomain]

// State is the full abstract register/heap state threaded through the
// combiner at every program point.
type State struct {
	Regs    RegEnv
	Objs    ObjEnv
	Arrays  ArrayHeap
	Fields  FieldEnv
	Strs    StrEnv
	Classes ClassEnv
}

func newRegEnv() RegEnv     { return domain.NewHashedPartition[ir.Reg](domain.SignedConstantTop()) }
func newObjEnv() ObjEnv     { return domain.NewHashedPartition[ir.Reg](objFactOf(domain.NewObjectTop(), nil)) }
func newArrayHeap() ArrayHeap { return domain.NewHashedPartition[heapPtr](domain.ArrayTop()) }
func newFieldEnv() FieldEnv { return domain.NewHashedPartition[ir.FieldRef](domain.SignedConstantTop()) }
func newStrEnv() StrEnv     { return domain.NewHashedPartition[ir.Reg](domain.ConstTop[ir.StringRef]()) }
func newClassEnv() ClassEnv { return domain.NewHashedPartition[ir.Reg](domain.ConstTop[ir.TypeRef]()) }

// Top is the entry state at a method's first block before any parameter
// facts are bound.
func Top() State {
	return State{
		Regs: newRegEnv(), Objs: newObjEnv(), Arrays: newArrayHeap(), Fields: newFieldEnv(),
		Strs: newStrEnv(), Classes: newClassEnv(),
	}
}

// Bottom is the state of unreached code, the fixpoint iterator's seed
// value for every block before its first predecessor has been analyzed.
func Bottom() State {
	return State{
		Regs:    newRegEnv().Bottom(),
		Objs:    newObjEnv().Bottom(),
		Arrays:  newArrayHeap().Bottom(),
		Fields:  newFieldEnv().Bottom(),
		Strs:    newStrEnv().Bottom(),
		Classes: newClassEnv().Bottom(),
	}
}

func (s State) IsBottom() bool {
	return s.Regs.IsBottom() || s.Objs.IsBottom() || s.Arrays.IsBottom() || s.Fields.IsBottom() ||
		s.Strs.IsBottom() || s.Classes.IsBottom()
}

func (s State) Leq(o State) bool {
	return s.Regs.Leq(o.Regs) && s.Objs.Leq(o.Objs) && s.Arrays.Leq(o.Arrays) && s.Fields.Leq(o.Fields) &&
		s.Strs.Leq(o.Strs) && s.Classes.Leq(o.Classes)
}

func (s State) Join(o State) State {
	return State{
		Regs:    s.Regs.Join(o.Regs),
		Objs:    s.Objs.Join(o.Objs),
		Arrays:  s.Arrays.Join(o.Arrays),
		Fields:  s.Fields.Join(o.Fields),
		Strs:    s.Strs.Join(o.Strs),
		Classes: s.Classes.Join(o.Classes),
	}
}

func (s State) Widen(o State) State {
	return State{
		Regs:    s.Regs.Widen(o.Regs),
		Objs:    s.Objs.Widen(o.Objs),
		Arrays:  s.Arrays.Widen(o.Arrays),
		Fields:  s.Fields.Widen(o.Fields),
		Strs:    s.Strs.Widen(o.Strs),
		Classes: s.Classes.Widen(o.Classes),
	}
}

// Reg returns the known constant for r, or Top if untracked.
func (s State) Reg(r ir.Reg) domain.SignedConstant { return s.Regs.Get(r) }

// Str returns the known CONST_STRING value bound to r, or Top.
func (s State) Str(r ir.Reg) domain.StringDomain { return s.Strs.Get(r) }

// Class returns the known CONST_CLASS value bound to r, or Top.
func (s State) Class(r ir.Reg) domain.ConstantClassDomain { return s.Classes.Get(r) }

func (s State) setReg(r ir.Reg, v domain.SignedConstant) State {
	s.Regs = s.Regs.Set(r, v)
	return s
}

func (s State) setStr(r ir.Reg, v domain.StringDomain) State {
	s.Strs = s.Strs.Set(r, v)
	return s
}

func (s State) setClass(r ir.Reg, v domain.ConstantClassDomain) State {
	s.Classes = s.Classes.Set(r, v)
	return s
}

func (s State) setObj(r ir.Reg, v domain.NewObjectDomain) State {
	s.Objs = s.Objs.Set(r, objFactOf(v, nil))
	return s
}

// setObjPtr binds r to an allocation-site fact that also records the
// allocating item's identity, used for NEW_ARRAY/NEW_INSTANCE dests so
// later AGET/APUT/escape checks can resolve the heap partition key.
func (s State) setObjPtr(r ir.Reg, v domain.NewObjectDomain, ptr heapPtr) State {
	s.Objs = s.Objs.Set(r, objFactOf(v, ptr))
	return s
}

// blockGraph adapts cfg.Graph to fixpoint.Graph[*cfg.Block]; constprop and
// liverange both need the same adaptation but neither imports the other,
// so it is duplicated rather than given a shared home.
type blockGraph struct{ g *cfg.Graph }

func (bg blockGraph) Root() *cfg.Block { return bg.g.Entry }

func (bg blockGraph) Successors(b *cfg.Block) []*cfg.Block {
	var out []*cfg.Block
	for _, e := range b.Succs() {
		if e.Tgt != nil {
			out = append(out, e.Tgt)
		}
	}
	return out
}

func (bg blockGraph) Predecessors(b *cfg.Block) []*cfg.Block {
	var out []*cfg.Block
	for _, e := range b.Preds() {
		if e.Src != nil {
			out = append(out, e.Src)
		}
	}
	return out
}
