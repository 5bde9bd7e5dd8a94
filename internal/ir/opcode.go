package ir

// Opcode is drawn from a closed set covering arithmetic, comparisons,
// moves, moves-of-result, conditional/table branches, invokes, field and
// array accesses, object creation, constants, and the synthetic opcodes
// (LOAD_PARAM*, MOVE_RESULT_PSEUDO*, and the editable-mode virtual GOTO
// that in that mode lives only as a CFG edge).
type Opcode uint16

const (
	opInvalid Opcode = iota

	// Constants.
	CONST
	CONST_WIDE
	CONST_STRING
	CONST_CLASS

	// Moves.
	MOVE
	MOVE_WIDE
	MOVE_OBJECT
	MOVE_RESULT
	MOVE_RESULT_WIDE
	MOVE_RESULT_OBJECT
	MOVE_EXCEPTION

	// Synthetic opcodes (never present in wire-format input; introduced by
	// the core during normalization or split).
	LOAD_PARAM
	LOAD_PARAM_OBJECT
	LOAD_PARAM_WIDE
	MOVE_RESULT_PSEUDO
	MOVE_RESULT_PSEUDO_OBJECT
	MOVE_RESULT_PSEUDO_WIDE
	GOTO // editable mode: never in the item stream, only as a CFG edge kind

	// Integer / long / float / double arithmetic.
	ADD_INT
	SUB_INT
	MUL_INT
	DIV_INT
	REM_INT
	AND_INT
	OR_INT
	XOR_INT
	SHL_INT
	SHR_INT
	USHR_INT
	NEG_INT
	ADD_INT_LIT
	SUB_INT_LIT
	MUL_INT_LIT
	AND_INT_LIT
	OR_INT_LIT
	XOR_INT_LIT
	SHL_INT_LIT
	SHR_INT_LIT

	ADD_LONG
	SUB_LONG
	MUL_LONG
	DIV_LONG
	REM_LONG

	ADD_FLOAT
	SUB_FLOAT
	MUL_FLOAT
	DIV_FLOAT

	ADD_DOUBLE
	SUB_DOUBLE
	MUL_DOUBLE
	DIV_DOUBLE

	// Comparisons that branch on this or the next instruction's condition.
	IF_EQ
	IF_NE
	IF_LT
	IF_GE
	IF_GT
	IF_LE
	IF_EQZ
	IF_NEZ
	IF_LTZ
	IF_GEZ
	IF_GTZ
	IF_LEZ

	CMP_LONG
	CMPG_FLOAT
	CMPL_FLOAT
	CMPG_DOUBLE
	CMPL_DOUBLE

	SWITCH // packed or sparse; payload references a jump-table

	// Invokes.
	INVOKE_VIRTUAL
	INVOKE_SUPER
	INVOKE_DIRECT
	INVOKE_STATIC
	INVOKE_INTERFACE

	// Fields.
	IGET
	IPUT
	SGET
	SPUT

	// Arrays.
	AGET
	APUT
	ARRAY_LENGTH
	NEW_ARRAY
	FILLED_NEW_ARRAY
	FILL_ARRAY_DATA

	// Objects.
	NEW_INSTANCE
	INSTANCE_OF
	CHECK_CAST

	// Terminators.
	RETURN
	RETURN_VOID
	RETURN_WIDE
	RETURN_OBJECT
	THROW

	NOP
	opSentinel
)

// RegType classifies what kind of value a register position is expected to
// hold, used by the interference graph builder.
type RegType uint8

const (
	RegAny RegType = iota
	RegNormal
	RegWide
	RegObject
)

func (t RegType) Kind() Kind {
	switch t {
	case RegNormal:
		return KindNormal
	case RegWide:
		return KindWide
	case RegObject:
		return KindObject
	default:
		return KindUnknown
	}
}

// info is the per-opcode metadata required by the opcode extension
// points: branchingness, may_throw, a size estimate (16-bit code units),
// and dest/src register types.
type info struct {
	name       string
	hasDest    bool
	destType   RegType
	branches   branchKind
	mayThrow   bool
	isInvoke   bool
	isMove     bool
	isReturn   bool
	isConst    bool
	isField    bool
	isArray    bool
	size       int
}

type branchKind uint8

const (
	branchNone branchKind = iota
	branchGoto
	branchConditional
	branchSwitch
)

var table = map[Opcode]info{
	CONST:              {name: "const", hasDest: true, destType: RegNormal, size: 2},
	CONST_WIDE:         {name: "const-wide", hasDest: true, destType: RegWide, size: 3, isConst: true},
	CONST_STRING:       {name: "const-string", hasDest: true, destType: RegObject, size: 2, isConst: true},
	CONST_CLASS:        {name: "const-class", hasDest: true, destType: RegObject, size: 2, isConst: true},

	MOVE:               {name: "move", hasDest: true, destType: RegNormal, size: 1, isMove: true},
	MOVE_WIDE:          {name: "move-wide", hasDest: true, destType: RegWide, size: 1, isMove: true},
	MOVE_OBJECT:        {name: "move-object", hasDest: true, destType: RegObject, size: 1, isMove: true},
	MOVE_RESULT:        {name: "move-result", hasDest: true, destType: RegNormal, size: 1},
	MOVE_RESULT_WIDE:   {name: "move-result-wide", hasDest: true, destType: RegWide, size: 1},
	MOVE_RESULT_OBJECT: {name: "move-result-object", hasDest: true, destType: RegObject, size: 1},
	MOVE_EXCEPTION:     {name: "move-exception", hasDest: true, destType: RegObject, size: 1},

	LOAD_PARAM:               {name: "load-param", hasDest: true, destType: RegNormal, size: 0},
	LOAD_PARAM_OBJECT:        {name: "load-param-object", hasDest: true, destType: RegObject, size: 0},
	LOAD_PARAM_WIDE:          {name: "load-param-wide", hasDest: true, destType: RegWide, size: 0},
	MOVE_RESULT_PSEUDO:       {name: "move-result-pseudo", hasDest: true, destType: RegNormal, size: 1},
	MOVE_RESULT_PSEUDO_OBJECT: {name: "move-result-pseudo-object", hasDest: true, destType: RegObject, size: 1},
	MOVE_RESULT_PSEUDO_WIDE:  {name: "move-result-pseudo-wide", hasDest: true, destType: RegWide, size: 1},
	GOTO:                     {name: "goto", branches: branchGoto, size: 1},

	NEG_INT:     {name: "neg-int", hasDest: true, destType: RegNormal, size: 1},
	ADD_INT_LIT: {name: "add-int/lit", hasDest: true, destType: RegNormal, size: 2},
	SUB_INT_LIT: {name: "sub-int/lit", hasDest: true, destType: RegNormal, size: 2},
	MUL_INT_LIT: {name: "mul-int/lit", hasDest: true, destType: RegNormal, size: 2},
	AND_INT_LIT: {name: "and-int/lit", hasDest: true, destType: RegNormal, size: 2},
	OR_INT_LIT:  {name: "or-int/lit", hasDest: true, destType: RegNormal, size: 2},
	XOR_INT_LIT: {name: "xor-int/lit", hasDest: true, destType: RegNormal, size: 2},
	SHL_INT_LIT: {name: "shl-int/lit", hasDest: true, destType: RegNormal, size: 2},
	SHR_INT_LIT: {name: "shr-int/lit", hasDest: true, destType: RegNormal, size: 2},

	RETURN:       {name: "return", isReturn: true, size: 1},
	RETURN_VOID:  {name: "return-void", isReturn: true, size: 1},
	RETURN_WIDE:  {name: "return-wide", isReturn: true, size: 1},
	RETURN_OBJECT: {name: "return-object", isReturn: true, size: 1},
	THROW:        {name: "throw", mayThrow: true, size: 1},

	SWITCH: {name: "switch", branches: branchSwitch, size: 3},

	CMP_LONG:    {name: "cmp-long", hasDest: true, destType: RegNormal, size: 2},
	CMPG_FLOAT:  {name: "cmpg-float", hasDest: true, destType: RegNormal, size: 2},
	CMPL_FLOAT:  {name: "cmpl-float", hasDest: true, destType: RegNormal, size: 2},
	CMPG_DOUBLE: {name: "cmpg-double", hasDest: true, destType: RegNormal, size: 2},
	CMPL_DOUBLE: {name: "cmpl-double", hasDest: true, destType: RegNormal, size: 2},

	IGET:         {name: "iget", hasDest: true, destType: RegAny, mayThrow: true, isField: true, size: 2},
	IPUT:         {name: "iput", mayThrow: true, isField: true, size: 2},
	SGET:         {name: "sget", hasDest: true, destType: RegAny, mayThrow: true, isField: true, size: 2},
	SPUT:         {name: "sput", mayThrow: true, isField: true, size: 2},

	AGET:         {name: "aget", hasDest: true, destType: RegAny, mayThrow: true, isArray: true, size: 2},
	APUT:         {name: "aput", mayThrow: true, isArray: true, size: 2},
	ARRAY_LENGTH: {name: "array-length", hasDest: true, destType: RegNormal, mayThrow: true, size: 1},
	NEW_ARRAY:    {name: "new-array", hasDest: true, destType: RegObject, mayThrow: true, size: 2},
	FILLED_NEW_ARRAY: {name: "filled-new-array", mayThrow: true, size: 3},
	FILL_ARRAY_DATA:  {name: "fill-array-data", mayThrow: true, size: 3},

	NEW_INSTANCE: {name: "new-instance", hasDest: true, destType: RegObject, mayThrow: true, size: 2},
	INSTANCE_OF:  {name: "instance-of", hasDest: true, destType: RegNormal, mayThrow: true, size: 2},
	CHECK_CAST:   {name: "check-cast", hasDest: true, destType: RegObject, mayThrow: true, size: 2},

	NOP: {name: "nop", size: 1},
}

func init() {
	for _, group := range []struct {
		ops  []Opcode
		info info
	}{
		{[]Opcode{ADD_INT, SUB_INT, MUL_INT, DIV_INT, REM_INT, AND_INT, OR_INT, XOR_INT, SHL_INT, SHR_INT, USHR_INT},
			info{hasDest: true, destType: RegNormal, size: 1}},
		{[]Opcode{ADD_LONG, SUB_LONG, MUL_LONG, DIV_LONG, REM_LONG},
			info{hasDest: true, destType: RegWide, size: 1}},
		{[]Opcode{ADD_FLOAT, SUB_FLOAT, MUL_FLOAT, DIV_FLOAT},
			info{hasDest: true, destType: RegNormal, size: 1}},
		{[]Opcode{ADD_DOUBLE, SUB_DOUBLE, MUL_DOUBLE, DIV_DOUBLE},
			info{hasDest: true, destType: RegWide, size: 1}},
		{[]Opcode{IF_EQ, IF_NE, IF_LT, IF_GE, IF_GT, IF_LE},
			info{branches: branchConditional, size: 2}},
		{[]Opcode{IF_EQZ, IF_NEZ, IF_LTZ, IF_GEZ, IF_GTZ, IF_LEZ},
			info{branches: branchConditional, size: 2}},
		{[]Opcode{INVOKE_VIRTUAL, INVOKE_SUPER, INVOKE_DIRECT, INVOKE_STATIC, INVOKE_INTERFACE},
			info{mayThrow: true, isInvoke: true, size: 3}},
	} {
		for _, op := range group.ops {
			name := opNames[op]
			entry := group.info
			entry.name = name
			table[op] = entry
		}
	}
}

// opNames holds the mnemonics, written out by hand, that the init() loop
// above stamps onto each grouped arithmetic and branch opcode.
var opNames = map[Opcode]string{
	ADD_INT: "add-int", SUB_INT: "sub-int", MUL_INT: "mul-int", DIV_INT: "div-int",
	REM_INT: "rem-int", AND_INT: "and-int", OR_INT: "or-int", XOR_INT: "xor-int",
	SHL_INT: "shl-int", SHR_INT: "shr-int", USHR_INT: "ushr-int",
	ADD_LONG: "add-long", SUB_LONG: "sub-long", MUL_LONG: "mul-long", DIV_LONG: "div-long", REM_LONG: "rem-long",
	ADD_FLOAT: "add-float", SUB_FLOAT: "sub-float", MUL_FLOAT: "mul-float", DIV_FLOAT: "div-float",
	ADD_DOUBLE: "add-double", SUB_DOUBLE: "sub-double", MUL_DOUBLE: "mul-double", DIV_DOUBLE: "div-double",
	IF_EQ: "if-eq", IF_NE: "if-ne", IF_LT: "if-lt", IF_GE: "if-ge", IF_GT: "if-gt", IF_LE: "if-le",
	IF_EQZ: "if-eqz", IF_NEZ: "if-nez", IF_LTZ: "if-ltz", IF_GEZ: "if-gez", IF_GTZ: "if-gtz", IF_LEZ: "if-lez",
	INVOKE_VIRTUAL: "invoke-virtual", INVOKE_SUPER: "invoke-super", INVOKE_DIRECT: "invoke-direct",
	INVOKE_STATIC: "invoke-static", INVOKE_INTERFACE: "invoke-interface",
}

func (op Opcode) String() string {
	if e, ok := table[op]; ok && e.name != "" {
		return e.name
	}
	return "opcode(?)"
}

func (op Opcode) entry() info { return table[op] }

func (op Opcode) HasDest() bool     { return op.entry().hasDest }
func (op Opcode) DestType() RegType { return op.entry().destType }
func (op Opcode) MayThrow() bool    { return op.entry().mayThrow }
func (op Opcode) IsInvoke() bool    { return op.entry().isInvoke }
func (op Opcode) IsMove() bool      { return op.entry().isMove }
func (op Opcode) IsReturn() bool    { return op.entry().isReturn }
func (op Opcode) IsThrow() bool     { return op == THROW }
func (op Opcode) IsConst() bool     { return op.entry().isConst }
func (op Opcode) IsField() bool     { return op.entry().isField }
func (op Opcode) IsArray() bool     { return op.entry().isArray }
func (op Opcode) IsSwitch() bool    { return op.entry().branches == branchSwitch }
func (op Opcode) IsConditionalBranch() bool { return op.entry().branches == branchConditional }
func (op Opcode) IsGoto() bool      { return op == GOTO }
func (op Opcode) IsBranch() bool    { return op.entry().branches != branchNone }
func (op Opcode) IsLoadParam() bool {
	return op == LOAD_PARAM || op == LOAD_PARAM_OBJECT || op == LOAD_PARAM_WIDE
}
func (op Opcode) IsMoveResultPseudo() bool {
	return op == MOVE_RESULT_PSEUDO || op == MOVE_RESULT_PSEUDO_OBJECT || op == MOVE_RESULT_PSEUDO_WIDE
}
func (op Opcode) IsMoveResult() bool {
	return op == MOVE_RESULT || op == MOVE_RESULT_WIDE || op == MOVE_RESULT_OBJECT || op.IsMoveResultPseudo()
}

// SizeUnits is a size estimate in 16-bit code units, used only by the
// lowering stage.
func (op Opcode) SizeUnits() int { return op.entry().size }

// IsWide reports whether this opcode's dest (if any) is a wide slot.
func (op Opcode) IsWide() bool { return op.DestType() == RegWide }
