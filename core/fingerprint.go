package evo

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// Fingerprint returns a structural key for a program fragment. Two
// fragments share a fingerprint exactly when their trees are identical;
// source positions are ignored.
func Fingerprint(elems []Element) string {
	var b strings.Builder
	for _, el := range elems {
		writeElement(&b, el)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FingerprintExpr is Fingerprint for a single expression.
func FingerprintExpr(x *Expr) string {
	return Fingerprint([]Element{ExprElem(x)})
}

func writeTag(b *strings.Builder, tag string, n int) {
	b.WriteString(tag)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(n))
	b.WriteByte('[')
}

func writeString(b *strings.Builder, s string) {
	b.WriteString(strconv.Quote(s))
	b.WriteByte(' ')
}

func writeElement(b *strings.Builder, el Element) {
	switch el.Kind {
	case ElemAtom:
		writeTag(b, "A", 0)
		writeString(b, el.Text)
	case ElemList:
		writeTag(b, "L", len(el.List))
		for _, c := range el.List {
			writeElement(b, c)
		}
	case ElemNaturalLang:
		writeTag(b, "N", 0)
		writeString(b, el.Text)
	case ElemExpr:
		writeTag(b, "E", 0)
		writeExpr(b, el.Expr)
	}
	b.WriteByte(']')
}

func writeExprs(b *strings.Builder, exprs []*Expr) {
	b.WriteString(strconv.Itoa(len(exprs)))
	b.WriteByte('{')
	for _, x := range exprs {
		writeExpr(b, x)
	}
	b.WriteByte('}')
}

func writeExpr(b *strings.Builder, x *Expr) {
	if x == nil {
		b.WriteString("nil ")
		return
	}
	writeTag(b, "X", int(x.Kind))
	switch x.Kind {
	case ExprLiteral:
		writeLiteral(b, x.Lit)
	case ExprVar:
		writeString(b, x.Name)
	case ExprCall:
		writeString(b, x.Name)
		writeExprs(b, x.Args)
	case ExprBinary:
		writeString(b, string(x.Op))
		writeExpr(b, x.Left)
		writeExpr(b, x.Right)
	case ExprIf:
		writeExpr(b, x.Cond)
		writeExpr(b, x.Then)
		writeExpr(b, x.Else)
	case ExprMatch:
		writeExpr(b, x.Value)
		b.WriteString(strconv.Itoa(len(x.Cases)))
		for _, c := range x.Cases {
			writePattern(b, c.Pattern)
			writeExpr(b, c.Body)
		}
	case ExprFor:
		writeString(b, x.Name)
		writeExpr(b, x.Value)
		writeExpr(b, x.Body)
	case ExprWhile:
		writeExpr(b, x.Cond)
		writeExpr(b, x.Body)
	case ExprTry:
		writeString(b, x.Name)
		writeExpr(b, x.Body)
		writeExpr(b, x.Catch)
	case ExprLambda:
		writeParams(b, x.Params)
		writeExpr(b, x.Body)
	case ExprBegin:
		writeExprs(b, x.Args)
	case ExprAssign:
		writeString(b, x.Name)
		writeExpr(b, x.Value)
	case ExprLet:
		writeString(b, x.Name)
		writeExpr(b, x.Value)
		writeExpr(b, x.Body)
	case ExprDef:
		writeString(b, x.Name)
		writeParams(b, x.Params)
		writeExpr(b, x.Body)
	case ExprForm:
		writeElement(b, ListElem(x.Form...))
	}
	b.WriteByte(']')
}

func writeParams(b *strings.Builder, params []string) {
	b.WriteString(strconv.Itoa(len(params)))
	b.WriteByte('(')
	for _, p := range params {
		writeString(b, p)
	}
	b.WriteByte(')')
}

func writeLiteral(b *strings.Builder, lit Literal) {
	writeTag(b, "V", int(lit.Kind))
	switch lit.Kind {
	case LitInt:
		b.WriteString(strconv.FormatInt(lit.Int, 10))
	case LitFloat:
		b.WriteString(strconv.FormatUint(math.Float64bits(lit.Float), 16))
	case LitString:
		writeString(b, lit.Str)
	case LitBool:
		b.WriteString(strconv.FormatBool(lit.Bool))
	case LitList:
		writeExprs(b, lit.Items)
	case LitDict:
		b.WriteString(strconv.Itoa(len(lit.Pairs)))
		for _, p := range lit.Pairs {
			writeString(b, p.Key)
			writeExpr(b, p.Value)
		}
	}
	b.WriteByte(']')
}

func writePattern(b *strings.Builder, p Pattern) {
	writeTag(b, "P", int(p.Kind))
	switch p.Kind {
	case PatLiteral:
		writeLiteral(b, p.Lit)
	case PatVar:
		writeString(b, p.Name)
	case PatList:
		b.WriteString(strconv.Itoa(len(p.Items)))
		for _, it := range p.Items {
			writePattern(b, it)
		}
	case PatDict:
		b.WriteString(strconv.Itoa(len(p.Keys)))
		for _, k := range p.Keys {
			writeString(b, k.Key)
			writePattern(b, k.Pattern)
		}
	}
	b.WriteByte(']')
}
