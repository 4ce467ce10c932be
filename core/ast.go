package evo

import (
	"fmt"
	"strconv"
	"strings"
)

type ElementKind int

const (
	ElemAtom ElementKind = iota
	ElemList
	ElemNaturalLang
	ElemExpr
)

// Element is a top-level syntax node. Atoms and Lists are forms the parser
// left for the evaluator to resolve; NaturalLang is carried through but never
// evaluated.
type Element struct {
	Kind ElementKind
	Text string // atom name or natural-language text
	List []Element
	Expr *Expr
	Line int
	Col  int
}

func AtomElem(name string) Element      { return Element{Kind: ElemAtom, Text: name} }
func ListElem(elems ...Element) Element { return Element{Kind: ElemList, List: elems} }
func NaturalLangElem(text string) Element {
	return Element{Kind: ElemNaturalLang, Text: text}
}
func ExprElem(e *Expr) Element { return Element{Kind: ElemExpr, Expr: e} }

type ExprKind int

const (
	ExprLiteral ExprKind = iota
	ExprVar
	ExprCall
	ExprBinary
	ExprIf
	ExprMatch
	ExprFor
	ExprWhile
	ExprTry
	ExprLambda
	ExprBegin
	ExprAssign
	ExprLet
	ExprDef
	ExprForm // an unresolved list form in expression position
)

// Expr is a parsed expression. Which fields are meaningful depends on Kind:
//
//	Literal  Lit
//	Var      Name
//	Call     Name, Args
//	Binary   Op, Left, Right
//	If       Cond, Then, Else (nil when absent)
//	Match    Value, Cases
//	For      Name, Value (iterable), Body
//	While    Cond, Body
//	Try      Body, Name (catch variable, may be empty), Catch
//	Lambda   Params, Body
//	Begin    Args
//	Assign   Name, Value
//	Let      Name, Value, Body (nil when the binding persists)
//	Def      Name, Params, Body
//	Form     Form
type Expr struct {
	Kind   ExprKind
	Lit    Literal
	Name   string
	Op     BinOp
	Args   []*Expr
	Left   *Expr
	Right  *Expr
	Cond   *Expr
	Then   *Expr
	Else   *Expr
	Value  *Expr
	Cases  []MatchCase
	Params []string
	Body   *Expr
	Catch  *Expr
	Form   []Element
}

type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitString
	LitBool
	LitNull
	LitList
	LitDict
)

type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Items []*Expr
	Pairs []DictEntry
}

// DictEntry is one key/value pair of a dict literal, kept in source order.
type DictEntry struct {
	Key   string
	Value *Expr
}

// scalar reports whether the literal is a plain value rather than a list
// or dict constructor.
func (l Literal) scalar() bool {
	return l.Kind != LitList && l.Kind != LitDict
}

// value returns the runtime value of a scalar literal.
func (l Literal) value() Value {
	switch l.Kind {
	case LitInt:
		return IntVal(l.Int)
	case LitFloat:
		return FloatVal(l.Float)
	case LitString:
		return StringVal(l.Str)
	case LitBool:
		return BoolVal(l.Bool)
	default:
		return NullVal()
	}
}

// literalOf converts a scalar runtime value back into a literal. The second
// result is false for lists, dicts and lambdas.
func literalOf(v Value) (Literal, bool) {
	switch v.Kind {
	case ValInt:
		return Literal{Kind: LitInt, Int: v.Int}, true
	case ValFloat:
		return Literal{Kind: LitFloat, Float: v.Float}, true
	case ValString:
		return Literal{Kind: LitString, Str: v.Str}, true
	case ValBool:
		return Literal{Kind: LitBool, Bool: v.Bool}, true
	case ValNull:
		return Literal{Kind: LitNull}, true
	default:
		return Literal{}, false
	}
}

type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpMod BinOp = "%"
	OpEq  BinOp = "="
	OpNe  BinOp = "!="
	OpLt  BinOp = "<"
	OpGt  BinOp = ">"
	OpLe  BinOp = "<="
	OpGe  BinOp = ">="
)

var binOps = map[string]BinOp{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
	"=": OpEq, "==": OpEq, "!=": OpNe, "<": OpLt, ">": OpGt, "<=": OpLe, ">=": OpGe,
}

// lookupOp maps an operator symbol to its BinOp.
func lookupOp(name string) (BinOp, bool) {
	op, ok := binOps[name]
	return op, ok
}

type PatternKind int

const (
	PatLiteral PatternKind = iota
	PatVar
	PatWildcard
	PatList
	PatDict
)

type Pattern struct {
	Kind  PatternKind
	Lit   Literal
	Name  string
	Items []Pattern
	Keys  []PatternEntry
}

type PatternEntry struct {
	Key     string
	Pattern Pattern
}

type MatchCase struct {
	Pattern Pattern
	Body    *Expr
}

// Expression constructors, mostly for building trees in Go code.

func IntLit(n int64) *Expr     { return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitInt, Int: n}} }
func FloatLit(f float64) *Expr { return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitFloat, Float: f}} }
func StringLit(s string) *Expr { return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitString, Str: s}} }
func BoolLit(b bool) *Expr     { return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitBool, Bool: b}} }
func NullLit() *Expr           { return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitNull}} }
func ListLit(items ...*Expr) *Expr {
	return &Expr{Kind: ExprLiteral, Lit: Literal{Kind: LitList, Items: items}}
}
func VarExpr(name string) *Expr { return &Expr{Kind: ExprVar, Name: name} }
func CallExpr(name string, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Name: name, Args: args}
}
func BinaryExpr(op BinOp, left, right *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right}
}
func IfExpr(cond, then, els *Expr) *Expr {
	return &Expr{Kind: ExprIf, Cond: cond, Then: then, Else: els}
}
func BeginExpr(exprs ...*Expr) *Expr { return &Expr{Kind: ExprBegin, Args: exprs} }

// --- Printing ---

func (el Element) String() string {
	switch el.Kind {
	case ElemAtom:
		return el.Text
	case ElemList:
		return "(" + joinElements(el.List) + ")"
	case ElemNaturalLang:
		return fmt.Sprintf("#nl %q", el.Text)
	case ElemExpr:
		return el.Expr.String()
	default:
		return "<unknown>"
	}
}

func joinElements(elems []Element) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

func joinExprs(exprs []*Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

func form(head string, rest ...string) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(head)
	for _, r := range rest {
		if r == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(r)
	}
	b.WriteString(")")
	return b.String()
}

func paramList(params []string) string {
	return "(" + strings.Join(params, " ") + ")"
}

// String renders the expression back as source text.
func (e *Expr) String() string {
	if e == nil {
		return "null"
	}
	switch e.Kind {
	case ExprLiteral:
		return e.Lit.String()
	case ExprVar:
		return e.Name
	case ExprCall:
		return form(e.Name, joinExprs(e.Args))
	case ExprBinary:
		return form(string(e.Op), e.Left.String(), e.Right.String())
	case ExprIf:
		if e.Else == nil {
			return form("if", e.Cond.String(), e.Then.String())
		}
		return form("if", e.Cond.String(), e.Then.String(), e.Else.String())
	case ExprMatch:
		parts := []string{e.Value.String()}
		for _, c := range e.Cases {
			parts = append(parts, "("+c.Pattern.String()+" "+c.Body.String()+")")
		}
		return form("match", parts...)
	case ExprFor:
		return form("for", e.Name, e.Value.String(), e.Body.String())
	case ExprWhile:
		return form("while", e.Cond.String(), e.Body.String())
	case ExprTry:
		return form("try", e.Body.String(), e.Name, e.Catch.String())
	case ExprLambda:
		return form("lambda", paramList(e.Params), e.Body.String())
	case ExprBegin:
		return form("begin", joinExprs(e.Args))
	case ExprAssign:
		return form("set!", e.Name, e.Value.String())
	case ExprLet:
		if e.Body == nil {
			return form("let", e.Name, e.Value.String())
		}
		return form("let", e.Name, e.Value.String(), e.Body.String())
	case ExprDef:
		return form("def", e.Name, paramList(e.Params), e.Body.String())
	case ExprForm:
		return "(" + joinElements(e.Form) + ")"
	default:
		return "<unknown>"
	}
}

func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		s := strconv.FormatFloat(l.Float, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case LitString:
		return strconv.Quote(l.Str)
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitNull:
		return "null"
	case LitList:
		return form("list", joinExprs(l.Items))
	case LitDict:
		parts := make([]string, 0, len(l.Pairs)*2)
		for _, p := range l.Pairs {
			parts = append(parts, strconv.Quote(p.Key), p.Value.String())
		}
		return form("dict", parts...)
	default:
		return "<unknown>"
	}
}

func (p Pattern) String() string {
	switch p.Kind {
	case PatLiteral:
		return p.Lit.String()
	case PatVar:
		return p.Name
	case PatWildcard:
		return "_"
	case PatList:
		parts := make([]string, len(p.Items))
		for i, it := range p.Items {
			parts[i] = it.String()
		}
		return form("list", parts...)
	case PatDict:
		parts := make([]string, 0, len(p.Keys)*2)
		for _, k := range p.Keys {
			parts = append(parts, strconv.Quote(k.Key), k.Pattern.String())
		}
		return form("dict", parts...)
	default:
		return "<unknown>"
	}
}
