package filter

import (
	"strings"

	"github.com/pagestore/pagestore/internal/storage"
)

// Eval runs the program against one row, reading columns out of
// layout and parameters out of params. It matches the
// fn(payload, serial_types, offsets, row_id) -> bool contract of
// spec.md §4.7: layout already carries the payload and the precomputed
// per-column offsets/serial types, so Eval never re-walks the record
// header.
func (p *Program) Eval(layout storage.RecordLayout, rowID int64, params map[string]storage.Value) (bool, error) {
	var stack [32]storage.Value
	sp := 0
	push := func(v storage.Value) {
		if sp < len(stack) {
			stack[sp] = v
			sp++
		}
	}
	pop := func() storage.Value {
		sp--
		return stack[sp]
	}

	for _, instr := range p.Instrs {
		switch instr.Op {
		case OpPushColumn:
			if instr.Arg == -1 {
				push(storage.IntegerValue(rowID))
				continue
			}
			v, err := layout.Value(instr.Arg)
			if err != nil {
				return false, err
			}
			push(v)
		case OpPushConstInt:
			push(storage.IntegerValue(p.ConstInt[instr.Arg]))
		case OpPushConstFloat:
			push(storage.RealValue(p.ConstFlt[instr.Arg]))
		case OpPushConstText:
			push(storage.TextValueString(p.ConstText[instr.Arg]))
		case OpPushConstNull:
			push(storage.NullValue())
		case OpPushParam:
			push(params[p.ConstText[instr.Arg]])

		case OpEq:
			b, a := pop(), pop()
			push(boolValue(cmpOp(a, b, func(c int) bool { return c == 0 })))
		case OpNeq:
			b, a := pop(), pop()
			push(boolValue(cmpOp(a, b, func(c int) bool { return c != 0 })))
		case OpLt:
			b, a := pop(), pop()
			push(boolValue(cmpOp(a, b, func(c int) bool { return c < 0 })))
		case OpLte:
			b, a := pop(), pop()
			push(boolValue(cmpOp(a, b, func(c int) bool { return c <= 0 })))
		case OpGt:
			b, a := pop(), pop()
			push(boolValue(cmpOp(a, b, func(c int) bool { return c > 0 })))
		case OpGte:
			b, a := pop(), pop()
			push(boolValue(cmpOp(a, b, func(c int) bool { return c >= 0 })))

		case OpAnd:
			b, a := pop(), pop()
			push(boolValue(truthy(a) && truthy(b)))
		case OpOr:
			b, a := pop(), pop()
			push(boolValue(truthy(a) || truthy(b)))
		case OpNot:
			a := pop()
			push(boolValue(!truthy(a)))

		case OpIsNull:
			push(boolValue(pop().IsNull()))
		case OpIsNotNull:
			push(boolValue(!pop().IsNull()))

		case OpLike:
			pattern, operand := pop(), pop()
			push(boolValue(likeMatch(operand.String(), pattern.String())))
		case OpNotLike:
			pattern, operand := pop(), pop()
			push(boolValue(!likeMatch(operand.String(), pattern.String())))

		case OpBetween:
			high, low, operand := pop(), pop(), pop()
			push(boolValue(compareValues(operand, low) >= 0 && compareValues(operand, high) <= 0))

		case OpIn:
			n := instr.Arg
			items := make([]storage.Value, n)
			for i := n - 1; i >= 0; i-- {
				items[i] = pop()
			}
			operand := pop()
			found := false
			for _, it := range items {
				if compareValues(operand, it) == 0 {
					found = true
					break
				}
			}
			push(boolValue(found))

		case OpAdd:
			b, a := pop(), pop()
			push(arith(a, b, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }))
		case OpSub:
			b, a := pop(), pop()
			push(arith(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y }))
		case OpMul:
			b, a := pop(), pop()
			push(arith(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }))
		case OpDiv:
			b, a := pop(), pop()
			push(arith(a, b, func(x, y int64) int64 {
				if y == 0 {
					return 0
				}
				return x / y
			}, func(x, y float64) float64 {
				if y == 0 {
					return 0
				}
				return x / y
			}))
		}
	}

	if sp == 0 {
		return true, nil
	}
	return truthy(pop()), nil
}

func boolValue(b bool) storage.Value {
	if b {
		return storage.IntegerValue(1)
	}
	return storage.IntegerValue(0)
}

func truthy(v storage.Value) bool {
	switch v.Kind {
	case storage.KindNull:
		return false
	case storage.KindIntegral:
		return v.Integer != 0
	case storage.KindReal:
		return v.Real != 0
	default:
		return len(v.Bytes) > 0
	}
}

// cmpOp evaluates a relational operator (=, <>, <, <=, >, >=) over a
// comparison result from compareValues, except it short-circuits to
// false whenever either operand is NULL: per spec.md §4.7 item 3,
// every relational comparison against NULL is NULL-safe and reports
// false rather than following compareValues' own NULL-sorts-lowest
// ordering convention (which exists for ORDER BY/BETWEEN/IN, not for
// these opcodes).
func cmpOp(a, b storage.Value, ok func(c int) bool) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	return ok(compareValues(a, b))
}

// compareValues orders two Values for comparison operators, promoting
// integral/real pairs to float64 before comparing, per spec.md's typed
// value comparison rules. NULL compares as less than everything.
func compareValues(a, b storage.Value) int {
	if a.IsNull() || b.IsNull() {
		if a.IsNull() && b.IsNull() {
			return 0
		}
		if a.IsNull() {
			return -1
		}
		return 1
	}
	if isNumeric(a) && isNumeric(b) {
		af, bf := numeric(a), numeric(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a.String(), b.String())
}

func isNumeric(v storage.Value) bool {
	return v.Kind == storage.KindIntegral || v.Kind == storage.KindReal
}

func numeric(v storage.Value) float64 {
	if v.Kind == storage.KindReal {
		return v.Real
	}
	return float64(v.Integer)
}

func arith(a, b storage.Value, fi func(int64, int64) int64, ff func(float64, float64) float64) storage.Value {
	if a.Kind == storage.KindReal || b.Kind == storage.KindReal {
		return storage.RealValue(ff(numeric(a), numeric(b)))
	}
	return storage.IntegerValue(fi(a.Integer, b.Integer))
}

// likeMatch implements SQL LIKE's % and _ wildcards over plain text
// (no escape character support, matching the reduced grammar this
// store accepts).
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		if len(s) == 0 {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return likeMatchRunes(s[1:], p[1:])
	}
}
