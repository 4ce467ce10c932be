package evo

import (
	"fmt"
)

// keywords are the special-form heads. They cannot be rebound.
var keywords = map[string]bool{
	"def": true, "function": true, "let": true, "if": true, "lambda": true,
	"match": true, "for": true, "while": true, "try": true, "set!": true,
	"begin": true, "do": true, "quote": true, "list": true, "vec": true, "dict": true,
}

type parser struct {
	toks []token
	pos  int
}

// Parse reads source text into a sequence of elements. Special forms are
// desugared into expressions; calls that take a lambda form as an argument
// are left as List elements for the evaluator to resolve. The first error
// aborts parsing.
func Parse(src string) ([]Element, error) {
	raw, err := readAll(src)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(raw))
	for i, el := range raw {
		d, err := desugar(el)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// ParseExpr parses source containing exactly one form into an expression.
func ParseExpr(src string) (*Expr, error) {
	raw, err := readAll(src)
	if err != nil {
		return nil, err
	}
	if len(raw) != 1 {
		return nil, &ParseError{Kind: SyntaxError, Msg: fmt.Sprintf("expected one form, got %d", len(raw))}
	}
	return toExpr(raw[0])
}

func readAll(src string) ([]Element, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var raw []Element
	for p.peek().kind != tokEOF {
		el, err := p.read()
		if err != nil {
			return nil, err
		}
		raw = append(raw, el)
	}
	return raw, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) take() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// read produces one raw form: atoms for symbols, lists for parenthesized
// forms and literal expressions for strings, numbers, booleans and null.
func (p *parser) read() (Element, error) {
	tok := p.take()
	at := func(el Element) Element {
		el.Line, el.Col = tok.line, tok.col
		return el
	}
	switch tok.kind {
	case tokLParen:
		var elems []Element
		for {
			switch p.peek().kind {
			case tokEOF:
				return Element{}, syntaxErrorAt(tok.line, tok.col, "unclosed list")
			case tokRParen:
				p.take()
				return at(ListElem(elems...)), nil
			}
			el, err := p.read()
			if err != nil {
				return Element{}, err
			}
			elems = append(elems, el)
		}
	case tokRParen:
		return Element{}, syntaxErrorAt(tok.line, tok.col, "unexpected ')'")
	case tokQuote:
		if p.peek().kind == tokEOF {
			return Element{}, syntaxErrorAt(tok.line, tok.col, "quote expects a form")
		}
		inner, err := p.read()
		if err != nil {
			return Element{}, err
		}
		return at(ListElem(at(AtomElem("quote")), inner)), nil
	case tokString:
		return at(ExprElem(StringLit(tok.text))), nil
	case tokInt:
		return at(ExprElem(IntLit(tok.int))), nil
	case tokFloat:
		return at(ExprElem(FloatLit(tok.float))), nil
	case tokSymbol:
		switch tok.text {
		case "true":
			return at(ExprElem(BoolLit(true))), nil
		case "false":
			return at(ExprElem(BoolLit(false))), nil
		case "null", "nil":
			return at(ExprElem(NullLit())), nil
		}
		return at(AtomElem(tok.text)), nil
	default:
		return Element{}, syntaxErrorAt(tok.line, tok.col, "unexpected end of input")
	}
}

// desugar resolves a raw form. The result is an Expr element, or a List
// element when the form is a call that must stay unresolved.
func desugar(el Element) (Element, error) {
	switch el.Kind {
	case ElemAtom:
		return positioned(ExprElem(VarExpr(el.Text)), el), nil
	case ElemList:
		return desugarList(el)
	default:
		return el, nil
	}
}

func positioned(out, src Element) Element {
	out.Line, out.Col = src.Line, src.Col
	return out
}

// toExpr desugars a form for use in expression position.
func toExpr(el Element) (*Expr, error) {
	d, err := desugar(el)
	if err != nil {
		return nil, err
	}
	switch d.Kind {
	case ElemExpr:
		return d.Expr, nil
	case ElemList:
		return &Expr{Kind: ExprForm, Form: d.List}, nil
	default:
		return nil, syntaxErrorAt(el.Line, el.Col, "unexpected %s in expression position", d)
	}
}

func toExprs(elems []Element) ([]*Expr, error) {
	exprs := make([]*Expr, len(elems))
	for i, el := range elems {
		e, err := toExpr(el)
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return exprs, nil
}

// bodyExpr joins one or more body forms; several become a Begin.
func bodyExpr(elems []Element) (*Expr, error) {
	if len(elems) == 1 {
		return toExpr(elems[0])
	}
	exprs, err := toExprs(elems)
	if err != nil {
		return nil, err
	}
	return BeginExpr(exprs...), nil
}

type formParser func(el Element) (*Expr, error)

var specialForms map[string]formParser

func init() {
	specialForms = map[string]formParser{
		"def":      parseDef,
		"function": parseDef,
		"let":      parseLet,
		"if":       parseIf,
		"lambda":   parseLambda,
		"match":    parseMatch,
		"for":      parseFor,
		"while":    parseWhile,
		"try":      parseTry,
		"set!":     parseAssign,
		"begin":    parseBegin,
		"do":       parseBegin,
		"list":     parseListLiteral,
		"vec":      parseListLiteral,
		"dict":     parseDictLiteral,
		"quote":    parseQuote,
	}
}

func desugarList(el Element) (Element, error) {
	if len(el.List) == 0 {
		return positioned(ExprElem(ListLit()), el), nil
	}
	head := el.List[0]
	if head.Kind != ElemAtom {
		return shell(el)
	}
	name := head.Text
	args := el.List[1:]

	if sf, ok := specialForms[name]; ok {
		e, err := sf(el)
		if err != nil {
			return Element{}, err
		}
		return positioned(ExprElem(e), el), nil
	}
	if name == "map" && isDictLiteralArgs(args) {
		e, err := parseDictLiteral(el)
		if err != nil {
			return Element{}, err
		}
		return positioned(ExprElem(e), el), nil
	}
	if hasLambdaArg(args) {
		return shell(el)
	}

	exprs, err := toExprs(args)
	if err != nil {
		return Element{}, err
	}
	if op, ok := lookupOp(name); ok {
		switch {
		case len(exprs) == 2:
			return positioned(ExprElem(BinaryExpr(op, exprs[0], exprs[1])), el), nil
		case op == OpAdd && len(exprs) > 2:
			acc := BinaryExpr(op, exprs[0], exprs[1])
			for _, x := range exprs[2:] {
				acc = BinaryExpr(op, acc, x)
			}
			return positioned(ExprElem(acc), el), nil
		}
	}
	return positioned(ExprElem(CallExpr(name, exprs...)), el), nil
}

// shell keeps a form as a List whose children are resolved individually.
// Atoms stay atoms; everything else is desugared.
func shell(el Element) (Element, error) {
	children := make([]Element, len(el.List))
	for i, c := range el.List {
		if c.Kind == ElemAtom {
			children[i] = c
			continue
		}
		d, err := desugar(c)
		if err != nil {
			return Element{}, err
		}
		children[i] = d
	}
	out := ListElem(children...)
	return positioned(out, el), nil
}

func isLambdaForm(el Element) bool {
	return el.Kind == ElemList && len(el.List) > 0 && el.List[0].Kind == ElemAtom && el.List[0].Text == "lambda"
}

func hasLambdaArg(args []Element) bool {
	for _, a := range args {
		if isLambdaForm(a) {
			return true
		}
	}
	return false
}

// isDictLiteralArgs decides whether (map ...) builds a dict: an even number
// of arguments with a string literal in every key position.
func isDictLiteralArgs(args []Element) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if !isStringLiteral(args[i]) {
			return false
		}
	}
	return true
}

func isStringLiteral(el Element) bool {
	return el.Kind == ElemExpr && el.Expr.Kind == ExprLiteral && el.Expr.Lit.Kind == LitString
}

// --- Special forms ---

func arityError(el Element, format string, args ...any) *ParseError {
	return syntaxErrorAt(el.Line, el.Col, format, args...)
}

// bindingName validates a name introduced by a binding form.
func bindingName(form string, el Element) (string, error) {
	if el.Kind != ElemAtom {
		return "", syntaxErrorAt(el.Line, el.Col, "%s: expected a name, got %s", form, el)
	}
	if keywords[el.Text] {
		return "", &ParseError{Kind: RuleConflict, Msg: fmt.Sprintf("%s: cannot bind keyword %q", form, el.Text), Line: el.Line, Col: el.Col}
	}
	return el.Text, nil
}

func parseParams(form string, el Element) ([]string, error) {
	var elems []Element
	switch el.Kind {
	case ElemAtom:
		elems = []Element{el}
	case ElemList:
		elems = el.List
	default:
		return nil, syntaxErrorAt(el.Line, el.Col, "%s: parameters must be a list of names", form)
	}
	params := make([]string, 0, len(elems))
	seen := make(map[string]bool, len(elems))
	for _, p := range elems {
		name, err := bindingName(form, p)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &ParseError{Kind: RuleConflict, Msg: fmt.Sprintf("%s: duplicate parameter %q", form, name), Line: p.Line, Col: p.Col}
		}
		seen[name] = true
		params = append(params, name)
	}
	return params, nil
}

// (def name (params...) body...)
func parseDef(el Element) (*Expr, error) {
	form := el.List[0].Text
	if len(el.List) < 4 {
		return nil, arityError(el, "%s: expected name, parameters and body", form)
	}
	name, err := bindingName(form, el.List[1])
	if err != nil {
		return nil, err
	}
	if el.List[2].Kind != ElemList {
		return nil, syntaxErrorAt(el.List[2].Line, el.List[2].Col, "%s: parameters must be a list", form)
	}
	params, err := parseParams(form, el.List[2])
	if err != nil {
		return nil, err
	}
	body, err := bodyExpr(el.List[3:])
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprDef, Name: name, Params: params, Body: body}, nil
}

// (let name value [body...])
func parseLet(el Element) (*Expr, error) {
	if len(el.List) < 3 {
		return nil, arityError(el, "let: expected name and value")
	}
	name, err := bindingName("let", el.List[1])
	if err != nil {
		return nil, err
	}
	value, err := toExpr(el.List[2])
	if err != nil {
		return nil, err
	}
	e := &Expr{Kind: ExprLet, Name: name, Value: value}
	if len(el.List) > 3 {
		if e.Body, err = bodyExpr(el.List[3:]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// (if cond then [else])
func parseIf(el Element) (*Expr, error) {
	if len(el.List) != 3 && len(el.List) != 4 {
		return nil, arityError(el, "if: expected 2 or 3 arguments, got %d", len(el.List)-1)
	}
	exprs, err := toExprs(el.List[1:])
	if err != nil {
		return nil, err
	}
	e := IfExpr(exprs[0], exprs[1], nil)
	if len(exprs) == 3 {
		e.Else = exprs[2]
	}
	return e, nil
}

// (lambda (params...) body...) or (lambda x body...)
func parseLambda(el Element) (*Expr, error) {
	if len(el.List) < 3 {
		return nil, arityError(el, "lambda: expected parameters and body")
	}
	params, err := parseParams("lambda", el.List[1])
	if err != nil {
		return nil, err
	}
	body, err := bodyExpr(el.List[2:])
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprLambda, Params: params, Body: body}, nil
}

// (match value (pattern body...)...)
func parseMatch(el Element) (*Expr, error) {
	if len(el.List) < 3 {
		return nil, arityError(el, "match: expected a value and at least one case")
	}
	value, err := toExpr(el.List[1])
	if err != nil {
		return nil, err
	}
	cases := make([]MatchCase, 0, len(el.List)-2)
	for _, c := range el.List[2:] {
		if c.Kind != ElemList || len(c.List) < 2 {
			return nil, syntaxErrorAt(c.Line, c.Col, "match: each case must be (pattern body)")
		}
		pat, err := parsePattern(c.List[0])
		if err != nil {
			return nil, err
		}
		if err := checkPatternVars(pat, map[string]bool{}, c); err != nil {
			return nil, err
		}
		body, err := bodyExpr(c.List[1:])
		if err != nil {
			return nil, err
		}
		cases = append(cases, MatchCase{Pattern: pat, Body: body})
	}
	return &Expr{Kind: ExprMatch, Value: value, Cases: cases}, nil
}

func parsePattern(el Element) (Pattern, error) {
	switch el.Kind {
	case ElemExpr:
		if el.Expr.Kind == ExprLiteral && el.Expr.Lit.scalar() {
			return Pattern{Kind: PatLiteral, Lit: el.Expr.Lit}, nil
		}
	case ElemAtom:
		if el.Text == "_" {
			return Pattern{Kind: PatWildcard}, nil
		}
		name, err := bindingName("match", el)
		if err != nil {
			return Pattern{}, err
		}
		return Pattern{Kind: PatVar, Name: name}, nil
	case ElemList:
		items := el.List
		if len(items) > 0 && items[0].Kind == ElemAtom {
			switch items[0].Text {
			case "list", "vec":
				items = items[1:]
			case "dict", "map":
				return parseDictPattern(el)
			}
		}
		pat := Pattern{Kind: PatList, Items: make([]Pattern, 0, len(items))}
		for _, it := range items {
			sub, err := parsePattern(it)
			if err != nil {
				return Pattern{}, err
			}
			pat.Items = append(pat.Items, sub)
		}
		return pat, nil
	}
	return Pattern{}, syntaxErrorAt(el.Line, el.Col, "match: invalid pattern %s", el)
}

func parseDictPattern(el Element) (Pattern, error) {
	rest := el.List[1:]
	if len(rest)%2 != 0 {
		return Pattern{}, syntaxErrorAt(el.Line, el.Col, "match: dict pattern needs key/pattern pairs")
	}
	pat := Pattern{Kind: PatDict}
	for i := 0; i < len(rest); i += 2 {
		key, err := dictKey(rest[i])
		if err != nil {
			return Pattern{}, err
		}
		sub, err := parsePattern(rest[i+1])
		if err != nil {
			return Pattern{}, err
		}
		pat.Keys = append(pat.Keys, PatternEntry{Key: key, Pattern: sub})
	}
	return pat, nil
}

// checkPatternVars rejects a pattern that binds the same name twice.
func checkPatternVars(p Pattern, seen map[string]bool, at Element) error {
	switch p.Kind {
	case PatVar:
		if seen[p.Name] {
			return &ParseError{Kind: RuleConflict, Msg: fmt.Sprintf("match: variable %q bound twice in one pattern", p.Name), Line: at.Line, Col: at.Col}
		}
		seen[p.Name] = true
	case PatList:
		for _, it := range p.Items {
			if err := checkPatternVars(it, seen, at); err != nil {
				return err
			}
		}
	case PatDict:
		for _, k := range p.Keys {
			if err := checkPatternVars(k.Pattern, seen, at); err != nil {
				return err
			}
		}
	}
	return nil
}

// (for var iterable body...)
func parseFor(el Element) (*Expr, error) {
	if len(el.List) < 4 {
		return nil, arityError(el, "for: expected variable, iterable and body")
	}
	name, err := bindingName("for", el.List[1])
	if err != nil {
		return nil, err
	}
	iter, err := toExpr(el.List[2])
	if err != nil {
		return nil, err
	}
	body, err := bodyExpr(el.List[3:])
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprFor, Name: name, Value: iter, Body: body}, nil
}

// (while cond body...)
func parseWhile(el Element) (*Expr, error) {
	if len(el.List) < 3 {
		return nil, arityError(el, "while: expected condition and body")
	}
	cond, err := toExpr(el.List[1])
	if err != nil {
		return nil, err
	}
	body, err := bodyExpr(el.List[2:])
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprWhile, Cond: cond, Body: body}, nil
}

// (try body [var] catch-body)
func parseTry(el Element) (*Expr, error) {
	var bodyEl, catchEl Element
	var name string
	switch len(el.List) {
	case 3:
		bodyEl, catchEl = el.List[1], el.List[2]
	case 4:
		n, err := bindingName("try", el.List[2])
		if err != nil {
			return nil, err
		}
		bodyEl, name, catchEl = el.List[1], n, el.List[3]
	default:
		return nil, arityError(el, "try: expected body, optional variable and handler")
	}
	body, err := toExpr(bodyEl)
	if err != nil {
		return nil, err
	}
	catch, err := toExpr(catchEl)
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprTry, Body: body, Name: name, Catch: catch}, nil
}

// (set! name value)
func parseAssign(el Element) (*Expr, error) {
	if len(el.List) != 3 {
		return nil, arityError(el, "set!: expected name and value")
	}
	name, err := bindingName("set!", el.List[1])
	if err != nil {
		return nil, err
	}
	value, err := toExpr(el.List[2])
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: ExprAssign, Name: name, Value: value}, nil
}

// (begin e...)
func parseBegin(el Element) (*Expr, error) {
	exprs, err := toExprs(el.List[1:])
	if err != nil {
		return nil, err
	}
	return BeginExpr(exprs...), nil
}

// (list e...)
func parseListLiteral(el Element) (*Expr, error) {
	items, err := toExprs(el.List[1:])
	if err != nil {
		return nil, err
	}
	return ListLit(items...), nil
}

// (dict k v ...), keys are strings or bare names.
func parseDictLiteral(el Element) (*Expr, error) {
	rest := el.List[1:]
	if len(rest)%2 != 0 {
		return nil, arityError(el, "%s: expected key/value pairs, got %d arguments", el.List[0].Text, len(rest))
	}
	lit := Literal{Kind: LitDict, Pairs: make([]DictEntry, 0, len(rest)/2)}
	for i := 0; i < len(rest); i += 2 {
		key, err := dictKey(rest[i])
		if err != nil {
			return nil, err
		}
		val, err := toExpr(rest[i+1])
		if err != nil {
			return nil, err
		}
		lit.Pairs = append(lit.Pairs, DictEntry{Key: key, Value: val})
	}
	return &Expr{Kind: ExprLiteral, Lit: lit}, nil
}

func dictKey(el Element) (string, error) {
	if el.Kind == ElemAtom {
		return el.Text, nil
	}
	if isStringLiteral(el) {
		return el.Expr.Lit.Str, nil
	}
	return "", syntaxErrorAt(el.Line, el.Col, "dict keys must be strings or names, got %s", el)
}

// (quote form): names become strings and lists become list literals.
func parseQuote(el Element) (*Expr, error) {
	if len(el.List) != 2 {
		return nil, arityError(el, "quote: expected exactly one form")
	}
	return quoteExpr(el.List[1]), nil
}

func quoteExpr(el Element) *Expr {
	switch el.Kind {
	case ElemAtom:
		return StringLit(el.Text)
	case ElemList:
		items := make([]*Expr, len(el.List))
		for i, c := range el.List {
			items[i] = quoteExpr(c)
		}
		return ListLit(items...)
	default:
		return el.Expr
	}
}
