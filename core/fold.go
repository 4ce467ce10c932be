package evo

// Fold returns a copy of a program with every Binary node whose operands
// are scalar literals replaced by its value. Children are folded first, so
// a single pass reaches a fixpoint and folding again changes nothing.
// Operations that would fail at run time, such as a zero divisor or a
// type mismatch, are left in place for the evaluator to report. The input
// is never modified; unchanged subtrees are shared with it.
func Fold(elems []Element) []Element {
	out, _ := foldElements(elems)
	return append([]Element(nil), out...)
}

// FoldExpr is Fold for a single expression.
func FoldExpr(x *Expr) *Expr {
	return foldExpr(x)
}

func foldElement(el Element) (Element, bool) {
	switch el.Kind {
	case ElemExpr:
		if folded := foldExpr(el.Expr); folded != el.Expr {
			el.Expr = folded
			return el, true
		}
	case ElemList:
		if list, changed := foldElements(el.List); changed {
			el.List = list
			return el, true
		}
	}
	return el, false
}

func foldElements(elems []Element) ([]Element, bool) {
	var out []Element
	for i, el := range elems {
		f, changed := foldElement(el)
		if changed && out == nil {
			out = append([]Element(nil), elems...)
		}
		if out != nil {
			out[i] = f
		}
	}
	if out == nil {
		return elems, false
	}
	return out, true
}

func foldExprs(exprs []*Expr) ([]*Expr, bool) {
	var out []*Expr
	for i, x := range exprs {
		f := foldExpr(x)
		if f != x && out == nil {
			out = make([]*Expr, len(exprs))
			copy(out, exprs[:i])
		}
		if out != nil {
			out[i] = f
		}
	}
	if out == nil {
		return exprs, false
	}
	return out, true
}

func foldExpr(x *Expr) *Expr {
	if x == nil {
		return nil
	}
	switch x.Kind {
	case ExprBinary:
		left, right := foldExpr(x.Left), foldExpr(x.Right)
		if lit, ok := foldBinary(x.Op, left, right); ok {
			return lit
		}
		if left == x.Left && right == x.Right {
			return x
		}
		return BinaryExpr(x.Op, left, right)

	case ExprLiteral:
		switch x.Lit.Kind {
		case LitList:
			items, changed := foldExprs(x.Lit.Items)
			if !changed {
				return x
			}
			return ListLit(items...)
		case LitDict:
			var pairs []DictEntry
			for i, p := range x.Lit.Pairs {
				v := foldExpr(p.Value)
				if v != p.Value && pairs == nil {
					pairs = append([]DictEntry(nil), x.Lit.Pairs...)
				}
				if pairs != nil {
					pairs[i].Value = v
				}
			}
			if pairs == nil {
				return x
			}
			return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitDict, Pairs: pairs}}
		}
		return x

	case ExprCall, ExprBegin:
		args, changed := foldExprs(x.Args)
		if !changed {
			return x
		}
		c := *x
		c.Args = args
		return &c

	case ExprForm:
		form, changed := foldElements(x.Form)
		if !changed {
			return x
		}
		c := *x
		c.Form = form
		return &c

	case ExprMatch:
		value := foldExpr(x.Value)
		var cases []MatchCase
		for i, mc := range x.Cases {
			body := foldExpr(mc.Body)
			if body != mc.Body && cases == nil {
				cases = append([]MatchCase(nil), x.Cases...)
			}
			if cases != nil {
				cases[i].Body = body
			}
		}
		if value == x.Value && cases == nil {
			return x
		}
		c := *x
		c.Value = value
		if cases != nil {
			c.Cases = cases
		}
		return &c

	default:
		// If, For, While, Try, Lambda, Assign, Let, Def: fold every
		// expression-valued field.
		c := *x
		c.Cond = foldExpr(x.Cond)
		c.Then = foldExpr(x.Then)
		c.Else = foldExpr(x.Else)
		c.Value = foldExpr(x.Value)
		c.Body = foldExpr(x.Body)
		c.Catch = foldExpr(x.Catch)
		if c.Cond == x.Cond && c.Then == x.Then && c.Else == x.Else &&
			c.Value == x.Value && c.Body == x.Body && c.Catch == x.Catch {
			return x
		}
		return &c
	}
}

// foldBinary evaluates op over two scalar literals. List and dict
// literals are never folded, and any operation that errors stays unfolded.
func foldBinary(op BinOp, left, right *Expr) (*Expr, bool) {
	if left.Kind != ExprLiteral || right.Kind != ExprLiteral {
		return nil, false
	}
	if !left.Lit.scalar() || !right.Lit.scalar() {
		return nil, false
	}
	v, err := binaryOp(op, left.Lit.value(), right.Lit.value())
	if err != nil {
		return nil, false
	}
	lit, ok := literalOf(v)
	if !ok {
		return nil, false
	}
	return &Expr{Kind: ExprLiteral, Lit: lit}, true
}
