package evo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type ValueKind int

const (
	ValInt ValueKind = iota
	ValFloat
	ValString
	ValBool
	ValNull
	ValList
	ValDict
	ValLambda
)

// Value is a runtime value. List and Dict contents are never mutated in
// place once a Value has been built, so copying a Value is cheap and safe.
// A Lambda carries only its registry id and parameter names.
type Value struct {
	Kind   ValueKind
	Int    int64
	Float  float64
	Bool   bool
	Str    string // string payload, or the lambda id
	List   []Value
	Dict   map[string]Value
	Params []string
}

func IntVal(n int64) Value     { return Value{Kind: ValInt, Int: n} }
func FloatVal(f float64) Value { return Value{Kind: ValFloat, Float: f} }
func StringVal(s string) Value { return Value{Kind: ValString, Str: s} }
func BoolVal(b bool) Value     { return Value{Kind: ValBool, Bool: b} }
func NullVal() Value           { return Value{Kind: ValNull} }

func ListVal(elems []Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Kind: ValList, List: elems}
}

func DictVal(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: ValDict, Dict: m}
}

func LambdaVal(id string, params []string) Value {
	return Value{Kind: ValLambda, Str: id, Params: params}
}

// Truthy reports the language's truthiness: false, zero numbers, empty
// strings, empty collections and null are falsy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValBool:
		return v.Bool
	case ValInt:
		return v.Int != 0
	case ValFloat:
		return v.Float != 0
	case ValString:
		return v.Str != ""
	case ValList:
		return len(v.List) > 0
	case ValDict:
		return len(v.Dict) > 0
	case ValNull:
		return false
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValInt:
		return strconv.FormatInt(v.Int, 10)
	case ValFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case ValString:
		return v.Str
	case ValBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValNull:
		return "null"
	case ValList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ValDict:
		keys := sortedKeys(v.Dict)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.Dict[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ValLambda:
		return fmt.Sprintf("<lambda(%s)>", strings.Join(v.Params, ", "))
	default:
		return fmt.Sprintf("<unknown:%d>", v.Kind)
	}
}

func (v Value) KindName() string {
	switch v.Kind {
	case ValInt:
		return "int"
	case ValFloat:
		return "float"
	case ValString:
		return "string"
	case ValBool:
		return "bool"
	case ValNull:
		return "null"
	case ValList:
		return "list"
	case ValDict:
		return "dict"
	case ValLambda:
		return "lambda"
	default:
		return "unknown"
	}
}

// ValuesEqual compares two Values structurally. There is no cross-kind
// equality, so 1 and 1.0 differ. Lambdas are equal when their ids are.
func ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValInt:
		return a.Int == b.Int
	case ValFloat:
		return a.Float == b.Float
	case ValString, ValLambda:
		return a.Str == b.Str
	case ValBool:
		return a.Bool == b.Bool
	case ValNull:
		return true
	case ValList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !ValuesEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case ValDict:
		if len(a.Dict) != len(b.Dict) {
			return false
		}
		for k, av := range a.Dict {
			bv, ok := b.Dict[k]
			if !ok || !ValuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return sortStrings(keys)
}

// ValueToGo converts a Value to a native Go value for JSON serialization.
func ValueToGo(v Value) (any, error) {
	switch v.Kind {
	case ValInt:
		return v.Int, nil
	case ValFloat:
		return v.Float, nil
	case ValString:
		return v.Str, nil
	case ValBool:
		return v.Bool, nil
	case ValNull:
		return nil, nil
	case ValList:
		arr := make([]any, len(v.List))
		for i, e := range v.List {
			j, err := ValueToGo(e)
			if err != nil {
				return nil, err
			}
			arr[i] = j
		}
		return arr, nil
	case ValDict:
		obj := make(map[string]any, len(v.Dict))
		for k, e := range v.Dict {
			j, err := ValueToGo(e)
			if err != nil {
				return nil, err
			}
			obj[k] = j
		}
		return obj, nil
	case ValLambda:
		return nil, fmt.Errorf("cannot serialize lambda %s", v.Str)
	default:
		return nil, fmt.Errorf("unknown value kind")
	}
}

// GoToValue converts a native Go value (as decoded from JSON) to a Value.
func GoToValue(v any) Value {
	switch val := v.(type) {
	case nil:
		return NullVal()
	case bool:
		return BoolVal(val)
	case int:
		return IntVal(int64(val))
	case int64:
		return IntVal(val)
	case float64:
		if val == float64(int64(val)) && val >= -1<<53 && val <= 1<<53 {
			return IntVal(int64(val))
		}
		return FloatVal(val)
	case string:
		return StringVal(val)
	case []any:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = GoToValue(e)
		}
		return ListVal(elems)
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, e := range val {
			m[k] = GoToValue(e)
		}
		return DictVal(m)
	default:
		return NullVal()
	}
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
