package evo

import (
	"math"
	"testing"
)

func strList(ss ...string) Value {
	vals := make([]Value, len(ss))
	for i, s := range ss {
		vals[i] = StringVal(s)
	}
	return ListVal(vals)
}

func TestBuiltinListAccess(t *testing.T) {
	testEval(t, "(list-get (list 10 20 30) 1)", IntVal(20))
	testEval(t, "(get (list 10 20 30) 0)", IntVal(10))
	testEval(t, "(length (list 1 2 3))", IntVal(3))
	testEval(t, "(list-length (list))", IntVal(0))
	testEval(t, `(length "héllo")`, IntVal(5))
	testEval(t, "(head (list 1 2))", IntVal(1))
	testEval(t, "(head (list))", NullVal())
	testEval(t, "(rest (list 1 2 3))", intList(2, 3))
	testEval(t, "(cons 0 (list 1 2))", intList(0, 1, 2))
}

func TestBuiltinListIndexErrors(t *testing.T) {
	ie := testEvalError(t, "(list-get (list 1 2) 5)", RuntimeError)
	if ie.Msg != "Index 5 out of bounds for list of length 2" {
		t.Fatalf("unexpected message %q", ie.Msg)
	}
	testEvalError(t, "(list-get (list 1) -1)", RuntimeError)
	testEvalError(t, `(list-get (list 1) "0")`, TypeError)
	testEvalError(t, "(list-get 5 0)", TypeError)
	testEvalError(t, "(list-get (list 1))", RuntimeError)
}

func TestBuiltinListUpdatesAreCopies(t *testing.T) {
	testEval(t, "(let xs (list 1 2 3)) (list-set xs 0 9) xs", intList(1, 2, 3))
	testEval(t, "(set (list 1 2 3) 0 9)", intList(9, 2, 3))
	testEval(t, "(let xs (list 1)) (append xs 2) xs", intList(1))
	testEval(t, "(list-append (list 1) 2)", intList(1, 2))
}

func TestBuiltinSlice(t *testing.T) {
	testEval(t, "(slice (list 1 2 3 4 5) 1 3)", intList(2, 3))
	testEval(t, "(slice (list 1 2 3 4 5) 2)", intList(3, 4, 5))
	testEval(t, "(list-slice (list 1 2 3 4 5) -2)", intList(4, 5))
	testEval(t, "(list-slice (list 1 2 3) 0 -1)", intList(1, 2))
	testEval(t, "(list-slice (list 1 2 3) 1 99)", intList(2, 3))
	testEval(t, "(list-slice (list 1 2 3) -99 1)", intList(1))
	testEval(t, "(list-slice (list 1 2 3) 2 1)", intList())
}

func TestBuiltinListTransforms(t *testing.T) {
	testEval(t, "(reverse (list 1 2 3))", intList(3, 2, 1))
	testEval(t, "(unique (list 1 2 1 3 2))", intList(1, 2, 3))
	testEval(t, "(flatten (list 1 (list 2 3) (list (list 4))))",
		ListVal([]Value{IntVal(1), IntVal(2), IntVal(3), intList(4)}))
	testEval(t, "(concat (list 1) (list 2 3))", intList(1, 2, 3))
	testEval(t, `(concat "a" "b" "c")`, StringVal("abc"))
	testEvalError(t, `(concat "a" 1)`, TypeError)
}

func TestBuiltinDicts(t *testing.T) {
	testEval(t, `(dict-get (dict "a" 1) "a")`, IntVal(1))
	testEval(t, `(dict-get (dict "a" 1) "b")`, NullVal())
	testEval(t, `(get (dict "a" 1) "a")`, IntVal(1))
	testEval(t, `(dict-has (dict "a" 1) "a")`, BoolVal(true))
	testEval(t, `(dict-keys (dict "b" 1 "a" 2))`, strList("a", "b"))
	testEval(t, `(dict-values (dict "b" 1 "a" 2))`, intList(2, 1))
	testEval(t, `(dict-size (dict "a" 1 "b" 2))`, IntVal(2))
	testEval(t, `(dict-length (dict))`, IntVal(0))
	testEval(t, `(let d (dict "a" 1)) (dict-set d "b" 2) (dict-size d)`, IntVal(1))
	testEval(t, `(dict-get (merge (dict "a" 1) (dict "a" 2 "b" 3)) "a")`, IntVal(2))
	testEval(t, `(dict-get (map "k" "v") "k")`, StringVal("v"))
	testEvalError(t, `(dict-get (dict) 1)`, TypeError)
}

func TestBuiltinStrings(t *testing.T) {
	testEval(t, `(split "a,b,c" ",")`, strList("a", "b", "c"))
	testEval(t, `(string-join (list "a" 1 "c") "-")`, StringVal("a-1-c"))
	testEval(t, `(trim "  x  ")`, StringVal("x"))
	testEval(t, `(replace "a-b-c" "-" "+")`, StringVal("a+b+c"))
	testEval(t, `(strlen "abc")`, IntVal(3))
	testEval(t, `(string-length "")`, IntVal(0))
	testEvalError(t, `(strlen 5)`, TypeError)
}

func TestBuiltinConversions(t *testing.T) {
	testEval(t, `(to-string 42)`, StringVal("42"))
	testEval(t, `(to-string (list 1 "a"))`, StringVal("[1, a]"))
	testEval(t, `(to-int "17")`, IntVal(17))
	testEval(t, `(to-int 3.9)`, IntVal(3))
	testEval(t, `(to-int true)`, IntVal(1))
	testEval(t, `(to-float 2)`, FloatVal(2))
	testEval(t, `(to-float " 2.5 ")`, FloatVal(2.5))
	testEvalError(t, `(to-int "x")`, TypeError)
	testEval(t, `(to-int -2.5)`, IntVal(-2))
	testEvalError(t, `(to-int (* 1000000000000.0 1000000000000000000000.0))`, TypeError)
	testEvalError(t, `(to-int (* -1000000000000.0 1000000000000000000000.0))`, TypeError)
	testEval(t, `(to-int -9223372036854775808.0)`, IntVal(math.MinInt64))
	testEvalError(t, `(to-int 9223372036854775808.0)`, TypeError)
	testEvalError(t, `(to-float (list))`, TypeError)
}

func TestToIntRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := builtinToInt([]Value{FloatVal(f)})
		if !IsErrorKind(err, TypeError) {
			t.Errorf("to-int %v: expected TypeError, got %v", f, err)
		}
	}
}

func TestBuiltinTypePredicates(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  bool
	}{
		{`(is-string "a")`, true},
		{`(is-string 1)`, false},
		{`(is-int 1)`, true},
		{`(is-int 1.0)`, false},
		{`(is-float 1.0)`, true},
		{`(is-bool false)`, true},
		{`(is-list (list))`, true},
		{`(is-dict (dict))`, true},
		{`(is-null null)`, true},
		{`(is-lambda (lambda (x) x))`, true},
		{`(is-lambda 1)`, false},
	} {
		testEval(t, tc.input, BoolVal(tc.want))
	}
}

func TestBuiltinTypeOf(t *testing.T) {
	testEval(t, `(type-of 1)`, StringVal("int"))
	testEval(t, `(type-of 1.5)`, StringVal("float"))
	testEval(t, `(type-of "s")`, StringVal("string"))
	testEval(t, `(type-of (dict))`, StringVal("dict"))
	testEval(t, `(type-of null)`, StringVal("null"))
}

func TestBuiltinUserFunctionWins(t *testing.T) {
	testEval(t, `(def length (x) "mine") (length (list 1 2))`, StringVal("mine"))
}

func TestDataBuiltinsDirect(t *testing.T) {
	b := DataBuiltins()
	v, err := b["list-append"]([]Value{intList(1), IntVal(2)})
	if err != nil {
		t.Fatal(err)
	}
	if !ValuesEqual(v, intList(1, 2)) {
		t.Fatalf("expected [1, 2], got %s", v)
	}
	if _, err := b["head"](nil); err == nil {
		t.Fatal("expected arity error")
	}
	for _, name := range []string{"list-get", "dict-get", "string-split", "split", "is-lambda", "type-of"} {
		if _, ok := b[name]; !ok {
			t.Fatalf("missing builtin %s", name)
		}
	}
}
