package ir

import (
	"fmt"
	"strings"
)

// FieldRef, MethodRef, TypeRef and StringRef stand in for the interned
// identifier tables, append-only and shared across the whole run. The
// core never mutates one after it is handed a reference, so plain value
// types are enough here; the interning itself is the DEX-parser
// collaborator's job.
type (
	TypeRef   string
	StringRef string
	FieldRef  struct{ Class, Name, Type TypeRef }
	MethodRef struct {
		Class  TypeRef
		Name   string
		Params []TypeRef
		Return TypeRef
	}
)

// IsWideParam reports whether the i'th parameter of this signature is a
// wide (long/double) type, used to decide normalized-invoke widths.
func (m MethodRef) IsWideParam(i int) bool {
	if i < 0 || i >= len(m.Params) {
		return false
	}
	t := m.Params[i]
	return t == "J" || t == "D"
}

func (m MethodRef) String() string {
	var b strings.Builder
	b.WriteString(string(m.Class))
	b.WriteByte('.')
	b.WriteString(m.Name)
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(string(p))
	}
	b.WriteByte(')')
	b.WriteString(string(m.Return))
	return b.String()
}

// PayloadKind tags the single optional payload an instruction may carry.
type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadLiteral
	PayloadString
	PayloadType
	PayloadField
	PayloadMethod
	PayloadArrayData // FILL_ARRAY_DATA's inline initial values
	PayloadSwitchData // SWITCH's ordered case keys, aligned to BRANCH edges
)

// Payload is the at-most-one extra operand every instruction may carry,
// "exactly one optional payload depending on opcode kind".
type Payload struct {
	Kind       PayloadKind
	Literal    int64
	Str        StringRef
	Type       TypeRef
	Field      FieldRef
	Method     MethodRef
	ArrayData  []int64
	SwitchData []int32
}

// Instruction is an opcode, at most one dest register, an ordered list of
// source registers (variable length — required for invokes), and at most
// one payload.
type Instruction struct {
	Op      Opcode
	dest    Reg
	hasDest bool
	srcs    []Reg
	Payload Payload

	// normalized marks that Srcs has already been collapsed to the
	// low-half-only form for wide invoke arguments).
	normalized bool
}

// New constructs an instruction with no operands set; callers fill in dest
// and srcs via SetDest/SetSrcs.
func New(op Opcode) *Instruction {
	return &Instruction{Op: op}
}

func (in *Instruction) Dest() Reg {
	if !in.hasDest {
		panic(fmt.Sprintf("ir: %s has no dest", in.Op))
	}
	return in.dest
}

func (in *Instruction) HasDest() bool { return in.hasDest }

func (in *Instruction) SetDest(r Reg) *Instruction {
	if !in.Op.HasDest() {
		panic(fmt.Sprintf("ir: %s cannot take a dest", in.Op))
	}
	in.dest = r
	in.hasDest = true
	return in
}

func (in *Instruction) Srcs() []Reg { return in.srcs }

func (in *Instruction) Src(i int) Reg { return in.srcs[i] }

func (in *Instruction) SrcsSize() int { return len(in.srcs) }

func (in *Instruction) SetSrcs(srcs []Reg) *Instruction {
	in.srcs = srcs
	return in
}

func (in *Instruction) SetSrc(i int, r Reg) { in.srcs[i] = r }

// SrcRegType reports the register kind expected at source position i. For
// invokes the callee signature decides width; for everything else the
// opcode does.
func (in *Instruction) SrcRegType(i int) RegType {
	if in.Op.IsInvoke() {
		if in.Op != INVOKE_STATIC {
			if i == 0 {
				return RegObject
			}
			i--
		}
		if in.Payload.Kind == PayloadMethod && in.Payload.Method.IsWideParam(i) {
			return RegWide
		}
		return RegNormal
	}
	if in.Op.IsField() || in.Op.IsArray() {
		// best-effort default; callers with exact field/array element types
		// narrow this further via the payload's recorded type when present.
		return RegAny
	}
	return RegNormal
}

// MayThrow reports whether this instruction's opcode may throw. An opcode
// that both writes a dest and may throw is split at construction time
// into the throwing opcode (no dest) plus a following
// MOVE_RESULT_PSEUDO* owning the destination; check-cast follows the
// same split. This accessor simply reports the opcode table's verdict;
// the split itself is enforced by the item-stream builder.
func (in *Instruction) MayThrow() bool { return in.Op.MayThrow() }

// Normalized reports whether wide invoke arguments have been collapsed to
// mention only the low half (the form every analysis in this repo sees).
func (in *Instruction) Normalized() bool { return in.normalized }

// NormalizeRegisters rewrites an invoke's src list so a wide argument is
// mentioned once (low half only), No-op for non-invokes
// and already-normalized instructions.
func (in *Instruction) NormalizeRegisters() {
	if in.normalized || !in.Op.IsInvoke() || in.Payload.Kind != PayloadMethod {
		in.normalized = true
		return
	}
	out := make([]Reg, 0, len(in.srcs))
	argIdx := 0
	i := 0
	if in.Op != INVOKE_STATIC && len(in.srcs) > 0 {
		out = append(out, in.srcs[0])
		i = 1
	}
	for ; i < len(in.srcs); i++ {
		out = append(out, in.srcs[i])
		if in.Payload.Method.IsWideParam(argIdx) {
			i++ // skip the high half
		}
		argIdx++
	}
	in.srcs = out
	in.normalized = true
}

// DenormalizeRegisters reverses NormalizeRegisters: wide arguments are
// expanded to their high-half pair (Reg+1), matching the wire format
// invokes require. Only meaningful right before lowering.
func (in *Instruction) DenormalizeRegisters() {
	if !in.normalized || !in.Op.IsInvoke() || in.Payload.Kind != PayloadMethod {
		in.normalized = false
		return
	}
	out := make([]Reg, 0, len(in.srcs)+2)
	argIdx := 0
	i := 0
	if in.Op != INVOKE_STATIC && len(in.srcs) > 0 {
		out = append(out, in.srcs[0])
		i = 1
	}
	for ; i < len(in.srcs); i++ {
		r := in.srcs[i]
		out = append(out, r)
		if in.Payload.Method.IsWideParam(argIdx) {
			out = append(out, r+1)
		}
		argIdx++
	}
	in.srcs = out
	in.normalized = false
}

// Clone returns a deep, independent copy (the payload's slices are copied,
// not shared).
func (in *Instruction) Clone() *Instruction {
	cp := *in
	cp.srcs = append([]Reg(nil), in.srcs...)
	cp.Payload.ArrayData = append([]int64(nil), in.Payload.ArrayData...)
	cp.Payload.SwitchData = append([]int32(nil), in.Payload.SwitchData...)
	cp.Payload.Method.Params = append([]TypeRef(nil), in.Payload.Method.Params...)
	return &cp
}

// Equals is structural equality, not identity.
func (in *Instruction) Equals(other *Instruction) bool {
	if in.Op != other.Op || in.hasDest != other.hasDest || in.dest != other.dest {
		return false
	}
	if len(in.srcs) != len(other.srcs) {
		return false
	}
	for i, s := range in.srcs {
		if other.srcs[i] != s {
			return false
		}
	}
	return payloadEquals(in.Payload, other.Payload)
}

func payloadEquals(a, b Payload) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case PayloadLiteral:
		return a.Literal == b.Literal
	case PayloadString:
		return a.Str == b.Str
	case PayloadType:
		return a.Type == b.Type
	case PayloadField:
		return a.Field == b.Field
	case PayloadMethod:
		return a.Method.String() == b.Method.String()
	case PayloadArrayData:
		return int64SliceEqual(a.ArrayData, b.ArrayData)
	case PayloadSwitchData:
		return int32SliceEqual(a.SwitchData, b.SwitchData)
	default:
		return true
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func int32SliceEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Hash is a stable structural hash, for use as a map key surrogate where
// identity isn't appropriate.
func (in *Instruction) Hash() uint64 {
	h := fnvOffset
	h = hashByte(h, byte(in.Op))
	if in.hasDest {
		h = hashByte(h, 1)
		h = hashUint16(h, uint16(in.dest))
	}
	for _, s := range in.srcs {
		h = hashUint16(h, uint16(s))
	}
	h = hashByte(h, byte(in.Payload.Kind))
	switch in.Payload.Kind {
	case PayloadLiteral:
		h = hashUint64(h, uint64(in.Payload.Literal))
	case PayloadString:
		h = hashString(h, string(in.Payload.Str))
	case PayloadType:
		h = hashString(h, string(in.Payload.Type))
	case PayloadField:
		h = hashString(h, string(in.Payload.Field.Class)+"."+string(in.Payload.Field.Name))
	case PayloadMethod:
		h = hashString(h, in.Payload.Method.String())
	}
	return h
}

const fnvOffset uint64 = 14695981039346656037
const fnvPrime uint64 = 1099511628211

func hashByte(h uint64, b byte) uint64 { return (h ^ uint64(b)) * fnvPrime }
func hashUint16(h uint64, v uint16) uint64 {
	h = hashByte(h, byte(v))
	return hashByte(h, byte(v>>8))
}
func hashUint64(h uint64, v uint64) uint64 {
	for i := 0; i < 8; i++ {
		h = hashByte(h, byte(v>>(8*i)))
	}
	return h
}
func hashString(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h = hashByte(h, s[i])
	}
	return h
}

func (in *Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	if in.hasDest {
		fmt.Fprintf(&b, " v%d,", in.dest)
	}
	b.WriteByte(' ')
	for i, s := range in.srcs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "v%d", s)
	}
	switch in.Payload.Kind {
	case PayloadLiteral:
		fmt.Fprintf(&b, " #%d", in.Payload.Literal)
	case PayloadString:
		fmt.Fprintf(&b, " %q", string(in.Payload.Str))
	case PayloadType, PayloadField, PayloadMethod:
		fmt.Fprintf(&b, " %v", in.payloadRef())
	}
	return b.String()
}

func (in *Instruction) payloadRef() any {
	switch in.Payload.Kind {
	case PayloadType:
		return in.Payload.Type
	case PayloadField:
		return in.Payload.Field
	case PayloadMethod:
		return in.Payload.Method
	default:
		return nil
	}
}

// RefCollector accumulates every string/type/field/method referenced
// across a sequence of instructions, feeding the emitter's constant-pool
// gather pass.
type RefCollector struct {
	Strings []StringRef
	Types   []TypeRef
	Fields  []FieldRef
	Methods []MethodRef
}

// Gather appends every string/type/field/method this instruction's
// payload references onto rc.
func (in *Instruction) Gather(rc *RefCollector) {
	switch in.Payload.Kind {
	case PayloadString:
		rc.Strings = append(rc.Strings, in.Payload.Str)
	case PayloadType:
		rc.Types = append(rc.Types, in.Payload.Type)
	case PayloadField:
		rc.Fields = append(rc.Fields, in.Payload.Field)
	case PayloadMethod:
		rc.Methods = append(rc.Methods, in.Payload.Method)
	}
}
