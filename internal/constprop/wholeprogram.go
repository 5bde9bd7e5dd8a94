package constprop

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dexopt/internal/cfg"
	"dexopt/internal/domain"
	"dexopt/internal/ir"
	"dexopt/internal/item"
)

// WholeProgramState is the cross-method summary constant propagation's
// Whole-Program Aware sub-analyzer reads from: a SignedConstant per
// static/instance field and per method return value, built in two phases
// and then refined by repeated interprocedural passes until neither
// summary set changes.
//
// Both maps use "absent key means Bottom (nothing observed yet)", not
// HashedAbstractPartition's "absent key means Top" convention — a fresh
// whole-program summary has NO information about a field or return, which
// is the bottom of the lattice, not the most-imprecise-but-present Top a
// register environment binds unknown locals to. Plain maps plus the
// OrBottom accessors below model that directly.
type WholeProgramState struct {
	fields  map[ir.FieldRef]domain.SignedConstant
	returns map[string]domain.SignedConstant
}

// ClassInit is one class initializer's CFG plus the class it belongs to,
// the phase-1 input: encoded static-field initial values seed the
// intraprocedural analysis, and its exit state supplies the field's
// whole-program starting point.
type ClassInit struct {
	Class   ir.TypeRef
	Graph   *cfg.Graph
	EncodedStatics map[ir.FieldRef]domain.SignedConstant
}

// MethodBody is one method's CFG plus enough metadata for the field/ctor
// scoping rules, the phase-2 and refinement input.
type MethodBody struct {
	ID      ir.MethodRef
	Class   ir.TypeRef
	IsClinit bool
	IsCtor  bool
	ThisReg ir.Reg
	Graph   *cfg.Graph
	ParamRegs []ir.Reg
}

// NewWholeProgramState returns an empty state (every field/return Bottom),
// ready for BuildPhase1/BuildPhase2.
func NewWholeProgramState() *WholeProgramState {
	return &WholeProgramState{
		fields:  make(map[ir.FieldRef]domain.SignedConstant),
		returns: make(map[string]domain.SignedConstant),
	}
}

// Field returns a field's summary and whether it resolved to an exact
// constant (the Whole-Program Aware sub-analyzer only wants to override
// the default when it has), not whether it has been observed at all
// (Bottom still reports ok=false — nothing usable yet either way).
func (w *WholeProgramState) Field(f ir.FieldRef) (domain.SignedConstant, bool) {
	v := w.fieldOrBottom(f)
	_, exact := v.AsExact()
	return v, exact
}

func (w *WholeProgramState) Return(m ir.MethodRef) (domain.SignedConstant, bool) {
	v := w.returnOrBottom(m.String())
	_, exact := v.AsExact()
	return v, exact
}

// FieldSummaries returns a copy of every field summary observed so far,
// keyed by field reference, for a cache layer to persist between runs.
func (w *WholeProgramState) FieldSummaries() map[ir.FieldRef]domain.SignedConstant {
	out := make(map[ir.FieldRef]domain.SignedConstant, len(w.fields))
	for k, v := range w.fields {
		out[k] = v
	}
	return out
}

// ReturnSummaries returns a copy of every return summary observed so far,
// keyed by the method reference's string form, for a cache layer to
// persist between runs.
func (w *WholeProgramState) ReturnSummaries() map[string]domain.SignedConstant {
	out := make(map[string]domain.SignedConstant, len(w.returns))
	for k, v := range w.returns {
		out[k] = v
	}
	return out
}

// SeedField joins a previously persisted summary into this state, letting a
// warm-started run fold in a prior run's field/return facts before
// BuildPhase1/BuildPhase2 observe anything themselves.
func (w *WholeProgramState) SeedField(f ir.FieldRef, v domain.SignedConstant) {
	w.fields[f] = w.fieldOrBottom(f).Join(v)
}

func (w *WholeProgramState) SeedReturn(key string, v domain.SignedConstant) {
	w.returns[key] = w.returnOrBottom(key).Join(v)
}

func (w *WholeProgramState) fieldOrBottom(f ir.FieldRef) domain.SignedConstant {
	if v, ok := w.fields[f]; ok {
		return v
	}
	return domain.SignedConstantBottom()
}

// returnOrBottom is the zero-value-safe accessor BuildPhase2 joins into:
// an absent key means no return statement has been observed yet, i.e.
// the lattice bottom, not the zero-valued (and not well-formed)
// SignedConstant{} struct literal.
func (w *WholeProgramState) returnOrBottom(key string) domain.SignedConstant {
	if v, ok := w.returns[key]; ok {
		return v
	}
	return domain.SignedConstantBottom()
}

// BuildPhase1 runs the intraprocedural iterator over every class
// initializer with only its encoded static-field initial values as
// input, and records the exit-state value of every static field it
// writes.
func (w *WholeProgramState) BuildPhase1(clinits []ClassInit) {
	for _, ci := range clinits {
		a := &Analyzer{OwnerClass: ci.Class, IsClinit: true}
		initial := Top()
		for f, v := range ci.EncodedStatics {
			initial.Fields = initial.Fields.Set(f, v)
		}
		result := Run(ci.Graph, a, initial)
		for _, b := range ci.Graph.BlocksSorted() {
			if len(b.NonGhostSuccs()) != 0 {
				continue
			}
			exit := result.ExitState(b)
			seen := make(map[ir.FieldRef]bool, len(ci.EncodedStatics))
			for f := range ci.EncodedStatics {
				seen[f] = true
			}
			for _, f := range exit.Fields.Keys() {
				seen[f] = true
			}
			for f := range seen {
				w.fields[f] = w.fieldOrBottom(f).Join(exit.Fields.Get(f))
			}
		}
	}
}

// BuildPhase2 walks every method with the intraprocedural analysis at
// each program point: every sput outside its declaring class's clinit
// joins the source register's value into the field's cross-program
// partition, and every return joins the returned register's value into
// the method's return partition.
func (w *WholeProgramState) BuildPhase2(methods []MethodBody) {
	for _, m := range methods {
		a := &Analyzer{OwnerClass: m.Class, IsClinit: m.IsClinit, IsCtor: m.IsCtor, ThisReg: m.ThisReg, WholeProgram: w, Self: m.ID}
		initial := Top()
		result := Run(m.Graph, a, initial)
		for _, b := range m.Graph.BlocksSorted() {
			state := result.EntryState(b)
			b.Items.Walk(func(it *item.Item) bool {
				if it.Kind != item.KindOpcode {
					return true
				}
				insn := it.Insn
				if insn.Op == ir.SPUT && !(m.IsClinit && insn.Payload.Field.Class == m.Class) {
					f := insn.Payload.Field
					w.fields[f] = w.fieldOrBottom(f).Join(state.Reg(insn.Src(0)))
				}
				if insn.Op == ir.RETURN {
					key := m.ID.String()
					w.returns[key] = w.returnOrBottom(key).Join(state.Reg(insn.Src(0)))
				}
				state = a.step(it, state)
				return true
			})
		}
	}
}

// Refine re-runs BuildPhase2 over the same methods until neither field
// nor return summaries change or maxIters is hit, letting later methods'
// sharper argument/return facts feed earlier callers on the next pass
// (the "interprocedural iterator may then iterate... refining
// argument summaries per callsite"). Methods are visited in the order
// given; no call graph is consulted and no dedicated fixpoint.Iterator is
// driven. Since refinement is a monotonic join, the visiting order only
// affects how many passes convergence takes.
func (w *WholeProgramState) Refine(methods []MethodBody, maxIters int) {
	for i := 0; i < maxIters; i++ {
		before := w.snapshot()
		w.BuildPhase2(methods)
		if w.snapshot() == before {
			return
		}
	}
}

func (w *WholeProgramState) snapshot() string {
	keys := make([]string, 0, len(w.returns))
	for k := range w.returns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, describeConstant(w.returns[k]))
	}
	fkeys := make([]ir.FieldRef, 0, len(w.fields))
	for f := range w.fields {
		fkeys = append(fkeys, f)
	}
	sortFieldRefs(fkeys)
	for _, f := range fkeys {
		fmt.Fprintf(&b, "%s.%s=%s;", f.Class, f.Name, describeConstant(w.fields[f]))
	}
	return b.String()
}

func describeConstant(v domain.SignedConstant) string {
	if n, ok := v.AsExact(); ok {
		return strconv.FormatInt(n, 10)
	}
	if v.IsBottom() {
		return "_"
	}
	return "?"
}

func sortFieldRefs(fs []ir.FieldRef) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Class != fs[j].Class {
			return fs[i].Class < fs[j].Class
		}
		return fs[i].Name < fs[j].Name
	})
}
