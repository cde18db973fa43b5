package filter

import (
	"fmt"

	"github.com/pagestore/pagestore/internal/parser"
)

// ColumnResolver maps an unqualified column name to its physical
// ordinal in a row's RecordLayout.
type ColumnResolver func(name string) (ordinal int, ok bool)

// compiler builds a flat instruction stream from an expression tree in
// a single recursive walk, hoisting literals straight into the
// constant pool at compile time rather than re-evaluating them per
// row, grounded on the teacher's codegen.go instruction-builder
// pattern.
type compiler struct {
	resolve ColumnResolver
	prog    Program
}

// Compile turns a WHERE-clause expression into a Program. Returns an
// error if the expression references a column the resolver doesn't
// recognize.
func Compile(e parser.Expr, resolve ColumnResolver) (*Program, error) {
	c := &compiler{resolve: resolve}
	if err := c.emit(e); err != nil {
		return nil, err
	}
	return &c.prog, nil
}

func (c *compiler) emit(e parser.Expr) error {
	switch n := e.(type) {
	case *parser.ColumnRef:
		ord, ok := c.resolve(n.Name)
		if !ok {
			return fmt.Errorf("unknown column %q", n.Name)
		}
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushColumn, Arg: ord})
		return nil

	case *parser.Literal:
		switch n.Kind {
		case parser.LitNull:
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushConstNull})
		case parser.LitInt:
			c.prog.ConstInt = append(c.prog.ConstInt, n.Int)
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushConstInt, Arg: len(c.prog.ConstInt) - 1})
		case parser.LitFloat:
			c.prog.ConstFlt = append(c.prog.ConstFlt, n.Float)
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushConstFloat, Arg: len(c.prog.ConstFlt) - 1})
		case parser.LitString:
			c.prog.ConstText = append(c.prog.ConstText, n.Text)
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushConstText, Arg: len(c.prog.ConstText) - 1})
		}
		return nil

	case *parser.Param:
		c.prog.ConstText = append(c.prog.ConstText, n.Name)
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushParam, Arg: len(c.prog.ConstText) - 1})
		return nil

	case *parser.UnaryExpr:
		switch n.Op {
		case parser.TokNot:
			if err := c.emit(n.Operand); err != nil {
				return err
			}
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpNot})
		case parser.TokMinus:
			// negation: 0 - x, keeps the instruction set free of a
			// dedicated unary-minus opcode.
			c.prog.ConstInt = append(c.prog.ConstInt, 0)
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpPushConstInt, Arg: len(c.prog.ConstInt) - 1})
			if err := c.emit(n.Operand); err != nil {
				return err
			}
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpSub})
		}
		return nil

	case *parser.BinaryExpr:
		if err := c.emit(n.Left); err != nil {
			return err
		}
		if err := c.emit(n.Right); err != nil {
			return err
		}
		op, err := binaryOp(n.Op)
		if err != nil {
			return err
		}
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: op})
		return nil

	case *parser.IsNullExpr:
		if err := c.emit(n.Operand); err != nil {
			return err
		}
		op := OpIsNull
		if n.Not {
			op = OpIsNotNull
		}
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: op})
		return nil

	case *parser.BetweenExpr:
		if err := c.emit(n.Operand); err != nil {
			return err
		}
		if err := c.emit(n.Low); err != nil {
			return err
		}
		if err := c.emit(n.High); err != nil {
			return err
		}
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpBetween})
		if n.Not {
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpNot})
		}
		return nil

	case *parser.InExpr:
		if err := c.emit(n.Operand); err != nil {
			return err
		}
		for _, item := range n.List {
			if err := c.emit(item); err != nil {
				return err
			}
		}
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpIn, Arg: len(n.List)})
		if n.Not {
			c.prog.Instrs = append(c.prog.Instrs, Instr{Op: OpNot})
		}
		return nil

	case *parser.LikeExpr:
		if err := c.emit(n.Operand); err != nil {
			return err
		}
		if err := c.emit(n.Pattern); err != nil {
			return err
		}
		op := OpLike
		if n.Not {
			op = OpNotLike
		}
		c.prog.Instrs = append(c.prog.Instrs, Instr{Op: op})
		return nil
	}

	return fmt.Errorf("unsupported expression in filter: %T", e)
}

func binaryOp(t parser.TokenKind) (Op, error) {
	switch t {
	case parser.TokEq:
		return OpEq, nil
	case parser.TokNeq:
		return OpNeq, nil
	case parser.TokLt:
		return OpLt, nil
	case parser.TokLte:
		return OpLte, nil
	case parser.TokGt:
		return OpGt, nil
	case parser.TokGte:
		return OpGte, nil
	case parser.TokAnd:
		return OpAnd, nil
	case parser.TokOr:
		return OpOr, nil
	case parser.TokPlus:
		return OpAdd, nil
	case parser.TokMinus:
		return OpSub, nil
	case parser.TokStar:
		return OpMul, nil
	case parser.TokSlash:
		return OpDiv, nil
	}
	return 0, fmt.Errorf("unsupported operator %v in filter", t)
}
