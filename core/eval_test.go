package evo

import (
	"bytes"
	"errors"
	"testing"
)

func testEval(t *testing.T, input string, expected Value) {
	t.Helper()
	ev := NewEvaluator()
	val, err := ev.ExecuteString(input)
	if err != nil {
		t.Fatalf("eval %q: %v", input, err)
	}
	if !ValuesEqual(val, expected) {
		t.Fatalf("eval %q: expected %s, got %s", input, expected.String(), val.String())
	}
}

func testEvalError(t *testing.T, input string, kind ErrorKind) *InterpreterError {
	t.Helper()
	ev := NewEvaluator()
	_, err := ev.ExecuteString(input)
	if err == nil {
		t.Fatalf("expected error for %q", input)
	}
	var ie *InterpreterError
	if !errors.As(err, &ie) {
		t.Fatalf("eval %q: expected *InterpreterError, got %T: %v", input, err, err)
	}
	if ie.Kind != kind {
		t.Fatalf("eval %q: expected error kind %d, got %d (%v)", input, kind, ie.Kind, ie)
	}
	return ie
}

func intList(ns ...int64) Value {
	vals := make([]Value, len(ns))
	for i, n := range ns {
		vals[i] = IntVal(n)
	}
	return ListVal(vals)
}

// --- Literals ---

func TestEvalLiterals(t *testing.T) {
	testEval(t, "42", IntVal(42))
	testEval(t, "3.14", FloatVal(3.14))
	testEval(t, "true", BoolVal(true))
	testEval(t, `"hello"`, StringVal("hello"))
	testEval(t, "null", NullVal())
	testEval(t, "", NullVal())
	testEval(t, "(list 1 2 3)", intList(1, 2, 3))
	testEval(t, `(dict "a" 1)`, DictVal(map[string]Value{"a": IntVal(1)}))
}

func TestEvalProgramReturnsLast(t *testing.T) {
	testEval(t, "1 2 3", IntVal(3))
}

// --- Arithmetic ---

func TestEvalArithmetic(t *testing.T) {
	testEval(t, "(+ 1 2)", IntVal(3))
	testEval(t, "(+ 1 2 3 4)", IntVal(10))
	testEval(t, "(- 10 4)", IntVal(6))
	testEval(t, "(* 6 7)", IntVal(42))
	testEval(t, "(/ 7 2)", IntVal(3))
	testEval(t, "(% 7 3)", IntVal(1))
	testEval(t, "(/ 7.0 2)", FloatVal(3.5))
	testEval(t, "(+ 1 0.5)", FloatVal(1.5))
	testEval(t, `(+ "evo" "lang")`, StringVal("evolang"))
	testEval(t, "(+ (list 1) (list 2))", intList(1, 2))
}

func TestEvalDivisionByZero(t *testing.T) {
	for _, src := range []string{"(/ 1 0)", "(% 1 0)", "(/ 1.0 0.0)", "(% 2.5 0)", "(/ 3 0.0)"} {
		testEvalError(t, src, DivisionByZero)
	}
}

func TestEvalTypeErrors(t *testing.T) {
	testEvalError(t, `(+ 1 "a")`, TypeError)
	testEvalError(t, `(* "a" 2)`, TypeError)
	testEvalError(t, `(< 1 "a")`, TypeError)
	testEvalError(t, `(for x "abc" x)`, TypeError)
}

func TestEvalOperatorArity(t *testing.T) {
	testEvalError(t, "(- 1 2 3)", RuntimeError)
	testEvalError(t, "(< 1)", RuntimeError)
}

func TestEvalComparison(t *testing.T) {
	testEval(t, "(< 1 2.5)", BoolVal(true))
	testEval(t, "(>= 3 3)", BoolVal(true))
	testEval(t, `(< "apple" "banana")`, BoolVal(true))
	testEval(t, "(= 1 1.0)", BoolVal(false))
	testEval(t, "(= (list 1 2) (list 1 2))", BoolVal(true))
	testEval(t, "(!= 1 2)", BoolVal(true))
	testEval(t, "(== null null)", BoolVal(true))
}

// --- Truthiness ---

func TestEvalIfTruthy(t *testing.T) {
	testEval(t, `(if true "yes" "no")`, StringVal("yes"))
	testEval(t, `(if false "yes" "no")`, StringVal("no"))
	testEval(t, `(if null "yes" "no")`, StringVal("no"))
	testEval(t, `(if 0 "yes" "no")`, StringVal("no"))
	testEval(t, `(if 0.0 "yes" "no")`, StringVal("no"))
	testEval(t, `(if "" "yes" "no")`, StringVal("no"))
	testEval(t, `(if (list) "yes" "no")`, StringVal("no"))
	testEval(t, `(if (list 0) "yes" "no")`, StringVal("yes"))
	testEval(t, `(if (lambda (x) x) "yes" "no")`, StringVal("yes"))
	testEval(t, `(if false "yes")`, NullVal())
}

// --- Variables ---

func TestEvalUndefinedVariable(t *testing.T) {
	ie := testEvalError(t, "missing", UndefinedVariable)
	if ie.Name != "missing" || ie.Error() != "Undefined variable 'missing'" {
		t.Fatalf("unexpected error %v", ie)
	}
}

func TestEvalLet(t *testing.T) {
	testEval(t, "(let x 1) x", IntVal(1))
	testEval(t, "(let x 1 (+ x 1))", IntVal(2))
	testEval(t, "(let x 1) (let x 2 x)", IntVal(2))
	testEval(t, "(let x 1) (let x 2 x) x", IntVal(1))
	testEvalError(t, "(let x 1 x) x", UndefinedVariable)
}

func TestEvalSet(t *testing.T) {
	testEval(t, "(let x 1) (set! x 5) x", IntVal(5))
	testEval(t, "(let x 1) (set! x (+ x 1))", IntVal(2))
	testEvalError(t, "(set! nope 1)", RuntimeError)
}

func TestEvalBegin(t *testing.T) {
	testEval(t, "(begin 1 2 3)", IntVal(3))
	testEval(t, "(do)", NullVal())
}

// --- Functions ---

func TestEvalFactorial(t *testing.T) {
	testEval(t, `
		(def fact (n)
		  (if (<= n 1) 1 (* n (fact (- n 1)))))
		(fact 10)`, IntVal(3628800))
}

func TestEvalFibonacci(t *testing.T) {
	testEval(t, `
		(function fib (n)
		  (if (< n 2) n (+ (fib (- n 1)) (fib (- n 2)))))
		(fib 15)`, IntVal(610))
}

func TestEvalFunctionArity(t *testing.T) {
	testEvalError(t, "(def f (a b) a) (f 1)", RuntimeError)
}

func TestEvalUnknownFunction(t *testing.T) {
	ie := testEvalError(t, "(nothing-here 1)", RuntimeError)
	if ie.Msg != "unknown function 'nothing-here'" {
		t.Fatalf("unexpected message %q", ie.Msg)
	}
}

func TestEvalFunctionSeesCallerBindings(t *testing.T) {
	testEval(t, "(def g () y) (def f (y) (g)) (f 3)", IntVal(3))
}

func TestEvalMultiBodyFunction(t *testing.T) {
	testEval(t, "(let n 0) (def bump (k) (set! n (+ n k)) n) (bump 2) (bump 3)", IntVal(5))
}

// --- Call frame restoration ---

func TestCallRestoresShadowedParameter(t *testing.T) {
	testEval(t, "(let n 7) (def double (n) (* n 2)) (double 3) n", IntVal(7))
}

func TestCallRemovesFreshParameters(t *testing.T) {
	ev := NewEvaluator()
	before := ev.Env().Names()
	if _, err := ev.ExecuteString("(def f (a b) (+ a b)) (f 1 2)"); err != nil {
		t.Fatal(err)
	}
	after := ev.Env().Names()
	if len(before) != len(after) {
		t.Fatalf("environment changed across call: %v -> %v", before, after)
	}
}

func TestCallRestoresAfterRecursion(t *testing.T) {
	ev := NewEvaluator()
	src := `
		(let n "outer")
		(def sum (n) (if (= n 0) 0 (+ n (sum (- n 1)))))
		(sum 20)`
	v, err := ev.ExecuteString(src)
	if err != nil {
		t.Fatal(err)
	}
	if !ValuesEqual(v, IntVal(210)) {
		t.Fatalf("expected 210, got %s", v)
	}
	if n, _ := ev.Lookup("n"); !ValuesEqual(n, StringVal("outer")) {
		t.Fatalf("expected n restored to outer, got %s", n)
	}
}

func TestCallRestoresOnError(t *testing.T) {
	ev := NewEvaluator()
	if _, err := ev.ExecuteString("(let a 1) (def bad (a b) (/ a b))"); err != nil {
		t.Fatal(err)
	}
	if _, err := ev.ExecuteString("(bad 5 0)"); !IsErrorKind(err, DivisionByZero) {
		t.Fatalf("expected DivisionByZero, got %v", err)
	}
	if a, _ := ev.Lookup("a"); !ValuesEqual(a, IntVal(1)) {
		t.Fatalf("expected a restored to 1, got %s", a)
	}
	if ev.Env().Has("b") {
		t.Fatal("expected b to be removed")
	}
}

// --- Lambdas and closures ---

func TestEvalLambdaCall(t *testing.T) {
	testEval(t, "((lambda (x) (* x 2)) 21)", IntVal(42))
	testEval(t, "(let sq (lambda (x) (* x x)) (sq 9))", IntVal(81))
	testEval(t, "(let id (lambda x x) (id 4))", IntVal(4))
}

func TestEvalClosureCapture(t *testing.T) {
	testEval(t, "(let x 10 (let f (lambda (y) (+ x y)) (f 5)))", IntVal(15))
}

func TestEvalClosureCaptureByValue(t *testing.T) {
	ev := NewEvaluator()
	src := `
		(let x 10)
		(let f (lambda (y) (+ x y)))
		(set! x 99)
		(f 5)`
	v, err := ev.ExecuteString(src)
	if err != nil {
		t.Fatal(err)
	}
	if !ValuesEqual(v, IntVal(15)) {
		t.Fatalf("expected 15, got %s", v)
	}
	if x, _ := ev.Lookup("x"); !ValuesEqual(x, IntVal(99)) {
		t.Fatalf("expected x to stay 99 after the call, got %s", x)
	}
}

func TestEvalClosureFromFunction(t *testing.T) {
	testEval(t, `
		(def make-adder (n) (lambda (x) (+ x n)))
		(let add5 (make-adder 5))
		(let add7 (make-adder 7))
		(+ (add5 10) (add7 10))`, IntVal(32))
}

func TestEvalParameterShadowsCapture(t *testing.T) {
	testEval(t, "(let x 1) (let f (lambda (x) (* x 10))) (f 2)", IntVal(20))
}

func TestEvalLambdaFreshIDs(t *testing.T) {
	ev := NewEvaluator()
	v, err := ev.ExecuteString("(def mk () (lambda (x) x)) (let a (mk)) (let b (mk)) (= a b)")
	if err != nil {
		t.Fatal(err)
	}
	if !ValuesEqual(v, BoolVal(false)) {
		t.Fatalf("expected distinct lambdas, got %s", v)
	}
	if ev.LambdaCount() != 2 {
		t.Fatalf("expected 2 registered lambdas, got %d", ev.LambdaCount())
	}
	testEval(t, "(let a (lambda (x) x)) (let b a) (= a b)", BoolVal(true))
}

func TestEvalLambdaArity(t *testing.T) {
	testEvalError(t, "((lambda (x y) x) 1)", RuntimeError)
}

func TestCallValue(t *testing.T) {
	ev := NewEvaluator()
	f, err := ev.ExecuteString("(lambda (a b) (- a b))")
	if err != nil {
		t.Fatal(err)
	}
	v, err := ev.CallValue(f, []Value{IntVal(10), IntVal(4)})
	if err != nil {
		t.Fatal(err)
	}
	if !ValuesEqual(v, IntVal(6)) {
		t.Fatalf("expected 6, got %s", v)
	}
	if _, err := ev.CallValue(IntVal(1), nil); !IsErrorKind(err, TypeError) {
		t.Fatalf("expected TypeError, got %v", err)
	}
}

// --- Higher-order builtins ---

func TestEvalMapFilterReduce(t *testing.T) {
	testEval(t, "(map (lambda (x) (* x 2)) (list 1 2 3))", intList(2, 4, 6))
	testEval(t, "(filter (lambda (x) (> x 1)) (list 1 2 3))", intList(2, 3))
	testEval(t, "(reduce (lambda (acc x) (+ acc x)) 0 (list 1 2 3 4))", IntVal(10))
	testEval(t, "(let k 3) (map (lambda (x) (* x k)) (list 1 2))", intList(3, 6))
	testEvalError(t, "(map (lambda (a b) a) (list 1))", RuntimeError)
	testEvalError(t, "(map 1 (list 1))", TypeError)
}

func TestEvalSortWithComparator(t *testing.T) {
	testEval(t, "(sort (list 3 1 2))", intList(1, 2, 3))
	testEval(t, "(sort (list 3 1 2) (lambda (a b) (> a b)))", intList(3, 2, 1))
	testEval(t, "(list-sort (list 3 1 2) (lambda (a b) (- a b)))", intList(1, 2, 3))
	testEvalError(t, `(sort (list 1 "a"))`, TypeError)
}

func TestEvalApply(t *testing.T) {
	testEval(t, "(apply (lambda (a b) (* a b)) (list 6 7))", IntVal(42))
}

// --- Match ---

func TestEvalMatch(t *testing.T) {
	testEval(t, `(match 2 (1 "one") (2 "two") (_ "many"))`, StringVal("two"))
	testEval(t, `(match 9 (1 "one") (_ "many"))`, StringVal("many"))
	testEval(t, "(match (list 1 2) ((list a b) (+ a b)) (_ 0))", IntVal(3))
	testEval(t, "(match (list 1 2 3) ((a b) 0) ((a b c) c))", IntVal(3))
	testEval(t, `(match (dict "k" 5 "z" 1) ((dict "k" v) v))`, IntVal(5))
	testEval(t, `(match "s" (1 "int") (x x))`, StringVal("s"))
	testEval(t, `(match 1.0 (1 "int") (_ "other"))`, StringVal("other"))
}

func TestEvalMatchNoCase(t *testing.T) {
	testEvalError(t, `(match 3 (1 "one"))`, RuntimeError)
}

func TestEvalMatchRestoresBindings(t *testing.T) {
	testEval(t, "(let a 100) (match (list 1 2) ((list a b) a)) a", IntVal(100))
	testEvalError(t, "(match 5 (b b)) b", UndefinedVariable)
}

// --- Loops ---

func TestEvalFor(t *testing.T) {
	testEval(t, "(let s 0) (for x (list 1 2 3) (set! s (+ s x))) s", IntVal(6))
	testEval(t, "(let s 0) (for i 4 (set! s (+ s i))) s", IntVal(6))
	testEval(t, "(for x (list) x)", NullVal())
	testEval(t, "(for x (list 1 2 3) (* x 10))", IntVal(30))
	testEvalError(t, "(for i 3 i) i", UndefinedVariable)
}

func TestEvalWhile(t *testing.T) {
	testEval(t, "(let i 0) (while (< i 5) (set! i (+ i 1))) i", IntVal(5))
	testEval(t, "(while false 1)", NullVal())
}

// --- Try ---

func TestEvalTry(t *testing.T) {
	testEval(t, "(try (/ 1 0) e e)", StringVal("Division by zero"))
	testEval(t, "(try missing e e)", StringVal("Undefined variable 'missing'"))
	testEval(t, "(try (no-such-fn) -1)", IntVal(-1))
	testEval(t, "(try 5 0)", IntVal(5))
	testEval(t, `(try (+ 1 "a") e e)`, StringVal("Type error: cannot add int and string"))
	testEvalError(t, "(try (/ 1 0) e e) e", UndefinedVariable)
}

// --- Print ---

func TestEvalPrint(t *testing.T) {
	ev := NewEvaluator()
	var buf bytes.Buffer
	ev.Stdout = &buf
	v, err := ev.ExecuteString(`(print "x=" 1 " " (list 1 2)) (print)`)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != ValNull {
		t.Fatalf("expected null from print, got %s", v)
	}
	if got := buf.String(); got != "x=1 [1, 2]\n\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

// --- Error taxonomy ---

func TestExecuteStringErrorTypes(t *testing.T) {
	ev := NewEvaluator()
	_, err := ev.ExecuteString("(+ 1")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	_, err = ev.ExecuteString("(/ 1 0)")
	var ie *InterpreterError
	if !errors.As(err, &ie) || errors.As(err, &pe) {
		t.Fatalf("expected *InterpreterError only, got %T", err)
	}
}

func TestNaturalLanguageNotExecutable(t *testing.T) {
	ev := NewEvaluator()
	_, err := ev.Execute([]Element{NaturalLangElem("add one and two")})
	if !IsErrorKind(err, RuntimeError) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}

func TestExecuteExpr(t *testing.T) {
	ev := NewEvaluator()
	v, err := ev.ExecuteExpr(BinaryExpr(OpMul, IntLit(6), IntLit(7)))
	if err != nil {
		t.Fatal(err)
	}
	if !ValuesEqual(v, IntVal(42)) {
		t.Fatalf("expected 42, got %s", v)
	}
}

func TestReset(t *testing.T) {
	ev := NewEvaluator()
	if _, err := ev.ExecuteString("(let x 1) (def f () 1) (let g (lambda () 2))"); err != nil {
		t.Fatal(err)
	}
	ev.Reset()
	if ev.Env().Len() != 0 || len(ev.FunctionNames()) != 0 || ev.LambdaCount() != 0 {
		t.Fatalf("expected empty evaluator after Reset")
	}
}

func TestFunctionNames(t *testing.T) {
	ev := NewEvaluator()
	if _, err := ev.ExecuteString("(def b () 1) (def a () 2)"); err != nil {
		t.Fatal(err)
	}
	names := ev.FunctionNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected [a b], got %v", names)
	}
	if _, ok := ev.Function("a"); !ok {
		t.Fatal("expected function a")
	}
}
