package filter

// Op is a predicate-VM opcode, narrowed from the teacher's general
// statement-execution virtual machine down to a per-row, side-effect
// free boolean evaluator: every program here only ever pushes values
// and combines them, it never touches a b-tree or a register file
// shared across rows.
type Op byte

const (
	OpPushColumn Op = iota // push column at Arg (ordinal into the row's physical layout)
	OpPushConstInt
	OpPushConstFloat
	OpPushConstText
	OpPushConstNull
	OpPushParam // push bound parameter at Arg

	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte

	OpAnd
	OpOr
	OpNot

	OpIsNull
	OpIsNotNull

	OpLike
	OpNotLike

	OpBetween // pops high, low, operand
	OpIn      // pops Arg values, then operand

	OpAdd
	OpSub
	OpMul
	OpDiv
)

// Instr is one fixed-width bytecode instruction. Arg indexes into the
// Program's constant pool or parameter/column ordinal space depending
// on Op; it is never reinterpreted as a pointer.
type Instr struct {
	Op  Op
	Arg int
}

// Program is a compiled predicate: a flat instruction stream plus the
// constant pool it references. Evaluating it against a row allocates
// only for an IN list, whose items are gathered into a fresh slice.
type Program struct {
	Instrs    []Instr
	ConstInt  []int64
	ConstFlt  []float64
	ConstText []string
}
