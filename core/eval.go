package evo

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Builtin is a function implemented in Go, called with eagerly evaluated arguments.
type Builtin func(args []Value) (Value, error)

// Function is a named function created by def/function or by import.
// Module is the module the body was written in; it is empty for functions
// defined at the top level of the running program.
type Function struct {
	Params []string
	Body   *Expr
	Module string
}

// closure is a lambda registry entry. captured is a copy of the
// environment taken when the lambda expression was evaluated.
type closure struct {
	params   []string
	body     *Expr
	captured map[string]Value
	module   string
}

// Evaluator executes syntax trees against one flat environment. It owns its
// function table, lambda registry and linked modules; it is not safe for
// concurrent use.
type Evaluator struct {
	Builtins map[string]Builtin
	// Stdout receives the output of print.
	Stdout io.Writer
	// ModuleRoot is the directory the module search order starts from.
	ModuleRoot string
	// ModulePath lists extra directories searched after the standard ones.
	ModulePath []string

	env       *Environment
	functions map[string]*Function
	lambdas   map[string]*closure
	lambdaSeq int

	modules       *moduleCache
	linked        map[string]*linkedModule
	linkOrder     []string
	adopted       map[*closure]string
	currentModule string
}

// NewEvaluator returns an evaluator with the standard builtins installed.
func NewEvaluator() *Evaluator {
	e := &Evaluator{Stdout: os.Stdout}
	e.reset()
	e.modules = newModuleCache()
	e.Builtins = DataBuiltins()
	for name, fn := range e.evaluatorBuiltins() {
		e.Builtins[name] = fn
	}
	return e
}

func (e *Evaluator) reset() {
	e.env = NewEnvironment()
	e.functions = make(map[string]*Function)
	e.lambdas = make(map[string]*closure)
	e.lambdaSeq = 0
	e.linked = make(map[string]*linkedModule)
	e.linkOrder = nil
	e.adopted = make(map[*closure]string)
	e.currentModule = ""
}

// Reset discards every binding, function, lambda and module link. The
// module cache is cleared as well so edited module files are re-read.
func (e *Evaluator) Reset() {
	e.reset()
	e.modules = newModuleCache()
}

// Env exposes the shared environment.
func (e *Evaluator) Env() *Environment { return e.env }

// Lookup returns the value bound to name in the environment.
func (e *Evaluator) Lookup(name string) (Value, bool) { return e.env.Get(name) }

// Function returns the named function from the global table.
func (e *Evaluator) Function(name string) (*Function, bool) {
	fn, ok := e.functions[name]
	return fn, ok
}

// FunctionNames lists the global function table in sorted order.
func (e *Evaluator) FunctionNames() []string {
	names := make([]string, 0, len(e.functions))
	for name := range e.functions {
		names = append(names, name)
	}
	return sortStrings(names)
}

// LambdaCount reports how many closures are registered.
func (e *Evaluator) LambdaCount() int { return len(e.lambdas) }

// Execute evaluates the elements in order and returns the last value; an
// empty program yields null. Every error is an *InterpreterError.
func (e *Evaluator) Execute(elems []Element) (Value, error) {
	result := NullVal()
	for _, el := range elems {
		v, err := e.evalElement(el)
		if err != nil {
			return Value{}, asInterpreterError(err)
		}
		result = v
	}
	return result, nil
}

// ExecuteExpr evaluates a single expression.
func (e *Evaluator) ExecuteExpr(x *Expr) (Value, error) {
	v, err := e.evalExpr(x)
	if err != nil {
		return Value{}, asInterpreterError(err)
	}
	return v, nil
}

// ExecuteString parses and executes source text. Parse failures are
// returned as *ParseError.
func (e *Evaluator) ExecuteString(src string) (Value, error) {
	elems, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	return e.Execute(elems)
}

func (e *Evaluator) evalElement(el Element) (Value, error) {
	switch el.Kind {
	case ElemExpr:
		return e.evalExpr(el.Expr)
	case ElemAtom:
		return e.lookupVar(el.Text)
	case ElemList:
		return e.evalForm(el.List)
	case ElemNaturalLang:
		return Value{}, runtimeError("natural language is not executable: %q", el.Text)
	default:
		return Value{}, runtimeError("unknown element kind %d", el.Kind)
	}
}

// headName returns the call name of a form head, if it has one.
func headName(el Element) (string, bool) {
	switch {
	case el.Kind == ElemAtom:
		return el.Text, true
	case el.Kind == ElemExpr && el.Expr.Kind == ExprVar:
		return el.Expr.Name, true
	}
	return "", false
}

// evalForm resolves a list left unresolved by the parser. Arguments are
// evaluated before the call; a head that is not a name is either a lambda
// to call or the first element of a sequence.
func (e *Evaluator) evalForm(list []Element) (Value, error) {
	if len(list) == 0 {
		return NullVal(), nil
	}
	if name, ok := headName(list[0]); ok {
		if keywords[name] || name == "map" && isDictLiteralArgs(list[1:]) {
			x, err := toExpr(ListElem(list...))
			if err != nil {
				return Value{}, runtimeError("%v", err)
			}
			return e.evalExpr(x)
		}
		if name == "import" {
			names := make([]string, 0, len(list)-1)
			for _, a := range list[1:] {
				n, err := importName(a)
				if err != nil {
					return Value{}, err
				}
				names = append(names, n)
			}
			return e.importNames(names)
		}
		args, err := e.evalElements(list[1:])
		if err != nil {
			return Value{}, err
		}
		return e.callNamed(name, args)
	}

	head, err := e.evalElement(list[0])
	if err != nil {
		return Value{}, err
	}
	if head.Kind == ValLambda {
		args, err := e.evalElements(list[1:])
		if err != nil {
			return Value{}, err
		}
		return e.callLambda(head, args)
	}
	result := head
	for _, el := range list[1:] {
		if result, err = e.evalElement(el); err != nil {
			return Value{}, err
		}
	}
	return result, nil
}

func (e *Evaluator) evalElements(elems []Element) ([]Value, error) {
	vals := make([]Value, len(elems))
	for i, el := range elems {
		v, err := e.evalElement(el)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (e *Evaluator) evalExprs(exprs []*Expr) ([]Value, error) {
	vals := make([]Value, len(exprs))
	for i, x := range exprs {
		v, err := e.evalExpr(x)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (e *Evaluator) evalExpr(x *Expr) (Value, error) {
	switch x.Kind {
	case ExprLiteral:
		return e.evalLiteral(x.Lit)
	case ExprVar:
		return e.lookupVar(x.Name)
	case ExprCall:
		if x.Name == "import" {
			return e.evalImport(x.Args)
		}
		args, err := e.evalExprs(x.Args)
		if err != nil {
			return Value{}, err
		}
		return e.callNamed(x.Name, args)
	case ExprBinary:
		left, err := e.evalExpr(x.Left)
		if err != nil {
			return Value{}, err
		}
		right, err := e.evalExpr(x.Right)
		if err != nil {
			return Value{}, err
		}
		return binaryOp(x.Op, left, right)
	case ExprIf:
		cond, err := e.evalExpr(x.Cond)
		if err != nil {
			return Value{}, err
		}
		if cond.Truthy() {
			return e.evalExpr(x.Then)
		}
		if x.Else == nil {
			return NullVal(), nil
		}
		return e.evalExpr(x.Else)
	case ExprMatch:
		return e.evalMatch(x)
	case ExprFor:
		return e.evalFor(x)
	case ExprWhile:
		return e.evalWhile(x)
	case ExprTry:
		return e.evalTry(x)
	case ExprLambda:
		return e.makeLambda(x.Params, x.Body), nil
	case ExprBegin:
		result := NullVal()
		for _, sub := range x.Args {
			v, err := e.evalExpr(sub)
			if err != nil {
				return Value{}, err
			}
			result = v
		}
		return result, nil
	case ExprAssign:
		if !e.env.Has(x.Name) {
			return Value{}, runtimeError("cannot set! undefined variable '%s'", x.Name)
		}
		v, err := e.evalExpr(x.Value)
		if err != nil {
			return Value{}, err
		}
		e.env.Set(x.Name, v)
		return v, nil
	case ExprLet:
		return e.evalLet(x)
	case ExprDef:
		e.functions[x.Name] = &Function{Params: x.Params, Body: x.Body, Module: e.currentModule}
		return NullVal(), nil
	case ExprForm:
		return e.evalForm(x.Form)
	default:
		return Value{}, runtimeError("unknown expression kind %d", x.Kind)
	}
}

func (e *Evaluator) evalLiteral(lit Literal) (Value, error) {
	switch lit.Kind {
	case LitList:
		items, err := e.evalExprs(lit.Items)
		if err != nil {
			return Value{}, err
		}
		return ListVal(items), nil
	case LitDict:
		m := make(map[string]Value, len(lit.Pairs))
		for _, p := range lit.Pairs {
			v, err := e.evalExpr(p.Value)
			if err != nil {
				return Value{}, err
			}
			m[p.Key] = v
		}
		return DictVal(m), nil
	default:
		return lit.value(), nil
	}
}

// lookupVar reads the environment. Inside an imported module's code, names
// the module bound at its own top level are visible unqualified.
func (e *Evaluator) lookupVar(name string) (Value, error) {
	if v, ok := e.env.Get(name); ok {
		return v, nil
	}
	if lm, ok := e.linked[e.currentModule]; ok {
		if v, ok := lm.env[name]; ok {
			return v, nil
		}
	}
	return Value{}, undefinedVariable(name)
}

func (e *Evaluator) evalLet(x *Expr) (Value, error) {
	v, err := e.evalExpr(x.Value)
	if err != nil {
		return Value{}, err
	}
	if x.Body == nil {
		e.env.Set(x.Name, v)
		return NullVal(), nil
	}
	fr := e.env.newFrame()
	defer fr.unwind()
	fr.bind(x.Name, v)
	return e.evalExpr(x.Body)
}

func (e *Evaluator) evalMatch(x *Expr) (Value, error) {
	v, err := e.evalExpr(x.Value)
	if err != nil {
		return Value{}, err
	}
	for _, c := range x.Cases {
		bindings, ok := matchPattern(c.Pattern, v, nil)
		if !ok {
			continue
		}
		fr := e.env.newFrame()
		for _, b := range bindings {
			fr.bind(b.name, b.value)
		}
		result, err := e.evalExpr(c.Body)
		fr.unwind()
		return result, err
	}
	return Value{}, runtimeError("no match case for value %s", v)
}

type patternBinding struct {
	name  string
	value Value
}

// matchPattern is pure: it returns the bindings a pattern would make, or
// false without partial bindings.
func matchPattern(p Pattern, v Value, acc []patternBinding) ([]patternBinding, bool) {
	switch p.Kind {
	case PatWildcard:
		return acc, true
	case PatVar:
		return append(acc, patternBinding{name: p.Name, value: v}), true
	case PatLiteral:
		return acc, ValuesEqual(p.Lit.value(), v)
	case PatList:
		if v.Kind != ValList || len(v.List) != len(p.Items) {
			return nil, false
		}
		for i, sub := range p.Items {
			var ok bool
			if acc, ok = matchPattern(sub, v.List[i], acc); !ok {
				return nil, false
			}
		}
		return acc, true
	case PatDict:
		if v.Kind != ValDict {
			return nil, false
		}
		for _, k := range p.Keys {
			item, present := v.Dict[k.Key]
			if !present {
				return nil, false
			}
			var ok bool
			if acc, ok = matchPattern(k.Pattern, item, acc); !ok {
				return nil, false
			}
		}
		return acc, true
	}
	return nil, false
}

func (e *Evaluator) evalFor(x *Expr) (Value, error) {
	iter, err := e.evalExpr(x.Value)
	if err != nil {
		return Value{}, err
	}
	var items []Value
	switch iter.Kind {
	case ValList:
		items = iter.List
	case ValInt:
		for i := int64(0); i < iter.Int; i++ {
			items = append(items, IntVal(i))
		}
	default:
		return Value{}, typeError("for expects a list or integer, got %s", iter.KindName())
	}

	result := NullVal()
	if len(items) == 0 {
		return result, nil
	}
	fr := e.env.newFrame()
	defer fr.unwind()
	fr.bind(x.Name, items[0])
	for i, item := range items {
		if i > 0 {
			e.env.Set(x.Name, item)
		}
		if result, err = e.evalExpr(x.Body); err != nil {
			return Value{}, err
		}
	}
	return result, nil
}

func (e *Evaluator) evalWhile(x *Expr) (Value, error) {
	result := NullVal()
	for {
		cond, err := e.evalExpr(x.Cond)
		if err != nil {
			return Value{}, err
		}
		if !cond.Truthy() {
			return result, nil
		}
		if result, err = e.evalExpr(x.Body); err != nil {
			return Value{}, err
		}
	}
}

func (e *Evaluator) evalTry(x *Expr) (Value, error) {
	v, err := e.evalExpr(x.Body)
	if err == nil {
		return v, nil
	}
	ie := asInterpreterError(err)
	if x.Name == "" {
		return e.evalExpr(x.Catch)
	}
	fr := e.env.newFrame()
	defer fr.unwind()
	fr.bind(x.Name, StringVal(ie.Error()))
	return e.evalExpr(x.Catch)
}

func (e *Evaluator) newLambdaID() string {
	e.lambdaSeq++
	return fmt.Sprintf("__lambda_%d", e.lambdaSeq)
}

// makeLambda registers a closure over a copy of the current environment,
// minus the lambda's own parameters, under a fresh id.
func (e *Evaluator) makeLambda(params []string, body *Expr) Value {
	id := e.newLambdaID()
	e.lambdas[id] = &closure{
		params:   params,
		body:     body,
		captured: e.env.Snapshot(params),
		module:   e.currentModule,
	}
	return LambdaVal(id, params)
}

// callNamed resolves a call name: a lambda bound in the environment, an
// operator, the global function table, the running module's functions,
// other linked modules in link order, then builtins.
func (e *Evaluator) callNamed(name string, args []Value) (Value, error) {
	if v, ok := e.env.Get(name); ok && v.Kind == ValLambda {
		return e.callLambda(v, args)
	}
	if op, ok := lookupOp(name); ok {
		return applyOperator(name, op, args)
	}
	if fn, ok := e.resolveFunction(name); ok {
		return e.callFunction(name, fn, args)
	}
	if b, ok := e.Builtins[name]; ok {
		return b(args)
	}
	return Value{}, runtimeError("unknown function '%s'", name)
}

func (e *Evaluator) resolveFunction(name string) (*Function, bool) {
	if fn, ok := e.functions[name]; ok {
		return fn, true
	}
	if lm, ok := e.linked[e.currentModule]; ok {
		if fn, ok := lm.functions[name]; ok {
			return fn, true
		}
	}
	for _, modName := range e.linkOrder {
		if modName == e.currentModule {
			continue
		}
		if fn, ok := e.linked[modName].functions[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

func (e *Evaluator) callFunction(name string, fn *Function, args []Value) (Value, error) {
	if len(args) != len(fn.Params) {
		return Value{}, runtimeError("function '%s' expects %d arguments, got %d", name, len(fn.Params), len(args))
	}
	fr := e.env.newFrame()
	defer fr.unwind()
	for i, p := range fn.Params {
		fr.bind(p, args[i])
	}
	prev := e.currentModule
	e.currentModule = fn.Module
	defer func() { e.currentModule = prev }()
	return e.evalExpr(fn.Body)
}

// callLambda restores the captured bindings, then binds the parameters over
// them, runs the body and undoes both.
func (e *Evaluator) callLambda(fnVal Value, args []Value) (Value, error) {
	c, ok := e.lambdas[fnVal.Str]
	if !ok {
		return Value{}, runtimeError("lambda %s not found in registry", fnVal.Str)
	}
	if len(args) != len(c.params) {
		return Value{}, runtimeError("lambda expects %d arguments, got %d", len(c.params), len(args))
	}
	fr := e.env.newFrame()
	defer fr.unwind()
	for name, v := range c.captured {
		if !containsString(c.params, name) {
			fr.bind(name, v)
		}
	}
	for i, p := range c.params {
		fr.bind(p, args[i])
	}
	prev := e.currentModule
	e.currentModule = c.module
	defer func() { e.currentModule = prev }()
	return e.evalExpr(c.body)
}

// CallValue invokes a lambda value with already evaluated arguments.
func (e *Evaluator) CallValue(fnVal Value, args []Value) (Value, error) {
	if fnVal.Kind != ValLambda {
		return Value{}, typeError("cannot call %s value", fnVal.KindName())
	}
	v, err := e.callLambda(fnVal, args)
	if err != nil {
		return Value{}, asInterpreterError(err)
	}
	return v, nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// importName reads a module name or alias written as a bare name or string.
func importName(el Element) (string, error) {
	if el.Kind == ElemAtom {
		return el.Text, nil
	}
	if el.Kind == ElemExpr {
		return importNameExpr(el.Expr)
	}
	return "", runtimeError("module name must be a string literal or identifier")
}

func importNameExpr(x *Expr) (string, error) {
	switch {
	case x.Kind == ExprVar:
		return x.Name, nil
	case x.Kind == ExprLiteral && x.Lit.Kind == LitString:
		return x.Lit.Str, nil
	}
	return "", runtimeError("module name must be a string literal or identifier")
}

func (e *Evaluator) evalImport(args []*Expr) (Value, error) {
	names := make([]string, len(args))
	for i, a := range args {
		n, err := importNameExpr(a)
		if err != nil {
			return Value{}, err
		}
		names[i] = n
	}
	return e.importNames(names)
}

func (e *Evaluator) importNames(names []string) (Value, error) {
	if len(names) == 0 || len(names) > 2 {
		return Value{}, runtimeError("import requires 1 or 2 arguments: module_name [alias]")
	}
	alias := names[0]
	if len(names) == 2 {
		alias = names[1]
	}
	if err := e.Import(names[0], alias); err != nil {
		var ie *InterpreterError
		if errors.As(err, &ie) {
			return Value{}, ie
		}
		return Value{}, runtimeError("%v", err)
	}
	return NullVal(), nil
}
