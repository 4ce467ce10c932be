package evo

import "math"

// binaryOp applies an operator to two evaluated operands. int op int stays
// int, including / and %; a float on either side promotes to float. Any
// zero divisor is DivisionByZero.
func binaryOp(op BinOp, l, r Value) (Value, error) {
	switch op {
	case OpAdd:
		return addValues(l, r)
	case OpSub, OpMul, OpDiv, OpMod:
		return arith(op, l, r)
	case OpEq:
		return BoolVal(ValuesEqual(l, r)), nil
	case OpNe:
		return BoolVal(!ValuesEqual(l, r)), nil
	case OpLt, OpGt, OpLe, OpGe:
		cmp, err := compareValues(op, l, r)
		if err != nil {
			return Value{}, err
		}
		switch op {
		case OpLt:
			return BoolVal(cmp < 0), nil
		case OpGt:
			return BoolVal(cmp > 0), nil
		case OpLe:
			return BoolVal(cmp <= 0), nil
		default:
			return BoolVal(cmp >= 0), nil
		}
	}
	return Value{}, runtimeError("unknown operator %s", op)
}

// applyOperator handles an operator reached through a call with other than
// two arguments. Only + is variadic.
func applyOperator(name string, op BinOp, args []Value) (Value, error) {
	if op == OpAdd && len(args) >= 1 {
		acc := args[0]
		for _, a := range args[1:] {
			var err error
			if acc, err = addValues(acc, a); err != nil {
				return Value{}, err
			}
		}
		return acc, nil
	}
	if len(args) != 2 {
		return Value{}, runtimeError("operator %s requires 2 arguments, got %d", name, len(args))
	}
	return binaryOp(op, args[0], args[1])
}

func isNumber(v Value) bool { return v.Kind == ValInt || v.Kind == ValFloat }

func asFloat(v Value) float64 {
	if v.Kind == ValInt {
		return float64(v.Int)
	}
	return v.Float
}

func addValues(l, r Value) (Value, error) {
	switch {
	case l.Kind == ValString && r.Kind == ValString:
		return StringVal(l.Str + r.Str), nil
	case l.Kind == ValList && r.Kind == ValList:
		out := make([]Value, 0, len(l.List)+len(r.List))
		out = append(out, l.List...)
		out = append(out, r.List...)
		return ListVal(out), nil
	case isNumber(l) && isNumber(r):
		return arith(OpAdd, l, r)
	}
	return Value{}, typeError("cannot add %s and %s", l.KindName(), r.KindName())
}

func arith(op BinOp, l, r Value) (Value, error) {
	if !isNumber(l) || !isNumber(r) {
		return Value{}, typeError("operator %s expects numbers, got %s and %s", op, l.KindName(), r.KindName())
	}
	if (op == OpDiv || op == OpMod) && asFloat(r) == 0 {
		return Value{}, divisionByZero()
	}
	if l.Kind == ValInt && r.Kind == ValInt {
		a, b := l.Int, r.Int
		switch op {
		case OpAdd:
			return IntVal(a + b), nil
		case OpSub:
			return IntVal(a - b), nil
		case OpMul:
			return IntVal(a * b), nil
		case OpDiv:
			return IntVal(a / b), nil
		default:
			return IntVal(a % b), nil
		}
	}
	a, b := asFloat(l), asFloat(r)
	switch op {
	case OpAdd:
		return FloatVal(a + b), nil
	case OpSub:
		return FloatVal(a - b), nil
	case OpMul:
		return FloatVal(a * b), nil
	case OpDiv:
		return FloatVal(a / b), nil
	default:
		return FloatVal(math.Mod(a, b)), nil
	}
}

// compareValues orders two numbers (promoting mixed int/float) or two
// strings. Anything else is a TypeError.
func compareValues(op BinOp, l, r Value) (int, error) {
	switch {
	case l.Kind == ValInt && r.Kind == ValInt:
		return cmpOrdered(l.Int, r.Int), nil
	case isNumber(l) && isNumber(r):
		return cmpOrdered(asFloat(l), asFloat(r)), nil
	case l.Kind == ValString && r.Kind == ValString:
		return cmpOrdered(l.Str, r.Str), nil
	}
	return 0, typeError("cannot compare %s and %s with %s", l.KindName(), r.KindName(), op)
}

func cmpOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
