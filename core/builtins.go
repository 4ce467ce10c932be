package evo

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DataBuiltins returns the builtins that need no evaluator state: list,
// dict and string utilities, type predicates and coercions.
func DataBuiltins() map[string]Builtin {
	b := map[string]Builtin{
		"get":         builtinGet,
		"list-get":    builtinListGet,
		"dict-get":    builtinDictGet,
		"dict-set":    builtinDictSet,
		"dict-keys":   builtinDictKeys,
		"dict-values": builtinDictValues,
		"dict-has":    builtinDictHas,
		"to-string":   builtinToString,
		"to-int":      builtinToInt,
		"to-float":    builtinToFloat,
		"head":        builtinHead,
		"rest":        builtinRest,
		"cons":        builtinCons,
		"type-of":     builtinTypeOf,
		"concat":      builtinConcat,
	}
	aliases := map[string]Builtin{
		"list-set":       builtinListSet,
		"list-append":    builtinListAppend,
		"list-length":    builtinLength,
		"string-split":   builtinSplit,
		"string-join":    builtinJoin,
		"string-trim":    builtinTrim,
		"string-replace": builtinReplace,
		"string-length":  builtinStrlen,
		"list-slice":     builtinSlice,
		"list-reverse":   builtinReverse,
		"list-unique":    builtinUnique,
		"list-flatten":   builtinFlatten,
		"dict-merge":     builtinMerge,
		"dict-size":      builtinDictSize,
	}
	short := map[string]string{
		"list-set": "set", "list-append": "append", "list-length": "length",
		"string-split": "split", "string-join": "join", "string-trim": "trim",
		"string-replace": "replace", "string-length": "strlen", "list-slice": "slice",
		"list-reverse": "reverse", "list-unique": "unique", "list-flatten": "flatten",
		"dict-merge": "merge", "dict-size": "dict-length",
	}
	for name, fn := range aliases {
		b[name] = fn
		b[short[name]] = fn
	}
	for _, kind := range []ValueKind{ValString, ValInt, ValFloat, ValBool, ValList, ValDict, ValNull, ValLambda} {
		b["is-"+Value{Kind: kind}.KindName()] = typePredicate(kind)
	}
	return b
}

// evaluatorBuiltins are the builtins that print or call back into lambdas.
func (e *Evaluator) evaluatorBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"print":     e.builtinPrint,
		"map":       e.builtinMap,
		"filter":    e.builtinFilter,
		"reduce":    e.builtinReduce,
		"list-sort": e.builtinSort,
		"sort":      e.builtinSort,
		"apply":     e.builtinApply,
	}
}

func expectArgs(name string, args []Value, n int) error {
	if len(args) != n {
		return runtimeError("%s: expected %d args, got %d", name, n, len(args))
	}
	return nil
}

func expectKind(name string, v Value, kind ValueKind) error {
	if v.Kind != kind {
		return typeError("%s: expected %s, got %s", name, Value{Kind: kind}.KindName(), v.KindName())
	}
	return nil
}

func typePredicate(kind ValueKind) Builtin {
	return func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Value{}, runtimeError("is-%s: expected 1 arg, got %d", Value{Kind: kind}.KindName(), len(args))
		}
		return BoolVal(args[0].Kind == kind), nil
	}
}

// --- Lists ---

func listIndex(name string, list []Value, idx Value) (int, error) {
	if err := expectKind(name, idx, ValInt); err != nil {
		return 0, err
	}
	if idx.Int < 0 || idx.Int >= int64(len(list)) {
		return 0, runtimeError("Index %d out of bounds for list of length %d", idx.Int, len(list))
	}
	return int(idx.Int), nil
}

func builtinListGet(args []Value) (Value, error) {
	if err := expectArgs("list-get", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-get", args[0], ValList); err != nil {
		return Value{}, err
	}
	i, err := listIndex("list-get", args[0].List, args[1])
	if err != nil {
		return Value{}, err
	}
	return args[0].List[i], nil
}

// builtinGet indexes a list or looks up a dict key.
func builtinGet(args []Value) (Value, error) {
	if len(args) == 2 && args[0].Kind == ValDict {
		return builtinDictGet(args)
	}
	return builtinListGet(args)
}

func builtinListSet(args []Value) (Value, error) {
	if err := expectArgs("list-set", args, 3); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-set", args[0], ValList); err != nil {
		return Value{}, err
	}
	i, err := listIndex("list-set", args[0].List, args[1])
	if err != nil {
		return Value{}, err
	}
	out := append([]Value(nil), args[0].List...)
	out[i] = args[2]
	return ListVal(out), nil
}

func builtinListAppend(args []Value) (Value, error) {
	if err := expectArgs("list-append", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-append", args[0], ValList); err != nil {
		return Value{}, err
	}
	out := make([]Value, 0, len(args[0].List)+1)
	out = append(out, args[0].List...)
	return ListVal(append(out, args[1])), nil
}

func builtinLength(args []Value) (Value, error) {
	if err := expectArgs("length", args, 1); err != nil {
		return Value{}, err
	}
	switch args[0].Kind {
	case ValList:
		return IntVal(int64(len(args[0].List))), nil
	case ValDict:
		return IntVal(int64(len(args[0].Dict))), nil
	case ValString:
		return IntVal(int64(utf8.RuneCountInString(args[0].Str))), nil
	default:
		return Value{}, typeError("length: expected list, dict or string, got %s", args[0].KindName())
	}
}

func builtinHead(args []Value) (Value, error) {
	if err := expectArgs("head", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("head", args[0], ValList); err != nil {
		return Value{}, err
	}
	if len(args[0].List) == 0 {
		return NullVal(), nil
	}
	return args[0].List[0], nil
}

func builtinRest(args []Value) (Value, error) {
	if err := expectArgs("rest", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("rest", args[0], ValList); err != nil {
		return Value{}, err
	}
	if len(args[0].List) == 0 {
		return ListVal(nil), nil
	}
	return ListVal(append([]Value(nil), args[0].List[1:]...)), nil
}

func builtinCons(args []Value) (Value, error) {
	if err := expectArgs("cons", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("cons", args[1], ValList); err != nil {
		return Value{}, err
	}
	out := make([]Value, 0, len(args[1].List)+1)
	out = append(out, args[0])
	return ListVal(append(out, args[1].List...)), nil
}

// sliceBound resolves a slice index; negative values count from the end
// and every result is clamped to [0, n].
func sliceBound(i int64, n int) int {
	if i < 0 {
		i += int64(n)
		if i < 0 {
			i = 0
		}
	}
	if i > int64(n) {
		i = int64(n)
	}
	return int(i)
}

func builtinSlice(args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, runtimeError("list-slice: expected 2-3 args (list start [end]), got %d", len(args))
	}
	if err := expectKind("list-slice", args[0], ValList); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-slice", args[1], ValInt); err != nil {
		return Value{}, err
	}
	list := args[0].List
	start, end := sliceBound(args[1].Int, len(list)), len(list)
	if len(args) == 3 {
		if err := expectKind("list-slice", args[2], ValInt); err != nil {
			return Value{}, err
		}
		end = sliceBound(args[2].Int, len(list))
	}
	if start > end {
		return ListVal(nil), nil
	}
	return ListVal(append([]Value(nil), list[start:end]...)), nil
}

func builtinReverse(args []Value) (Value, error) {
	if err := expectArgs("list-reverse", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-reverse", args[0], ValList); err != nil {
		return Value{}, err
	}
	list := args[0].List
	out := make([]Value, len(list))
	for i, v := range list {
		out[len(list)-1-i] = v
	}
	return ListVal(out), nil
}

func builtinUnique(args []Value) (Value, error) {
	if err := expectArgs("list-unique", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-unique", args[0], ValList); err != nil {
		return Value{}, err
	}
	var out []Value
outer:
	for _, v := range args[0].List {
		for _, seen := range out {
			if ValuesEqual(seen, v) {
				continue outer
			}
		}
		out = append(out, v)
	}
	return ListVal(out), nil
}

// builtinFlatten splices nested lists one level deep.
func builtinFlatten(args []Value) (Value, error) {
	if err := expectArgs("list-flatten", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("list-flatten", args[0], ValList); err != nil {
		return Value{}, err
	}
	var out []Value
	for _, v := range args[0].List {
		if v.Kind == ValList {
			out = append(out, v.List...)
		} else {
			out = append(out, v)
		}
	}
	return ListVal(out), nil
}

func builtinConcat(args []Value) (Value, error) {
	if len(args) == 0 {
		return Value{}, runtimeError("concat: expected at least 1 arg, got 0")
	}
	if args[0].Kind == ValList {
		var out []Value
		for _, a := range args {
			if err := expectKind("concat", a, ValList); err != nil {
				return Value{}, err
			}
			out = append(out, a.List...)
		}
		return ListVal(out), nil
	}
	var sb strings.Builder
	for _, a := range args {
		if err := expectKind("concat", a, ValString); err != nil {
			return Value{}, err
		}
		sb.WriteString(a.Str)
	}
	return StringVal(sb.String()), nil
}

// --- Dicts ---

func builtinDictGet(args []Value) (Value, error) {
	if err := expectArgs("dict-get", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-get", args[0], ValDict); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-get", args[1], ValString); err != nil {
		return Value{}, err
	}
	v, ok := args[0].Dict[args[1].Str]
	if !ok {
		return NullVal(), nil
	}
	return v, nil
}

func builtinDictSet(args []Value) (Value, error) {
	if err := expectArgs("dict-set", args, 3); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-set", args[0], ValDict); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-set", args[1], ValString); err != nil {
		return Value{}, err
	}
	out := make(map[string]Value, len(args[0].Dict)+1)
	for k, v := range args[0].Dict {
		out[k] = v
	}
	out[args[1].Str] = args[2]
	return DictVal(out), nil
}

func builtinDictKeys(args []Value) (Value, error) {
	if err := expectArgs("dict-keys", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-keys", args[0], ValDict); err != nil {
		return Value{}, err
	}
	keys := sortedKeys(args[0].Dict)
	out := make([]Value, len(keys))
	for i, k := range keys {
		out[i] = StringVal(k)
	}
	return ListVal(out), nil
}

// builtinDictValues returns values ordered by key.
func builtinDictValues(args []Value) (Value, error) {
	if err := expectArgs("dict-values", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-values", args[0], ValDict); err != nil {
		return Value{}, err
	}
	keys := sortedKeys(args[0].Dict)
	out := make([]Value, len(keys))
	for i, k := range keys {
		out[i] = args[0].Dict[k]
	}
	return ListVal(out), nil
}

func builtinDictHas(args []Value) (Value, error) {
	if err := expectArgs("dict-has", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-has", args[0], ValDict); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-has", args[1], ValString); err != nil {
		return Value{}, err
	}
	_, ok := args[0].Dict[args[1].Str]
	return BoolVal(ok), nil
}

// builtinMerge combines two or more dicts; later keys win.
func builtinMerge(args []Value) (Value, error) {
	if len(args) < 2 {
		return Value{}, runtimeError("dict-merge: expected at least 2 args, got %d", len(args))
	}
	out := make(map[string]Value)
	for _, a := range args {
		if err := expectKind("dict-merge", a, ValDict); err != nil {
			return Value{}, err
		}
		for k, v := range a.Dict {
			out[k] = v
		}
	}
	return DictVal(out), nil
}

func builtinDictSize(args []Value) (Value, error) {
	if err := expectArgs("dict-size", args, 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("dict-size", args[0], ValDict); err != nil {
		return Value{}, err
	}
	return IntVal(int64(len(args[0].Dict))), nil
}

// --- Strings ---

func stringArgs(name string, args []Value, n int) error {
	if err := expectArgs(name, args, n); err != nil {
		return err
	}
	for _, a := range args {
		if err := expectKind(name, a, ValString); err != nil {
			return err
		}
	}
	return nil
}

func builtinSplit(args []Value) (Value, error) {
	if err := stringArgs("string-split", args, 2); err != nil {
		return Value{}, err
	}
	parts := strings.Split(args[0].Str, args[1].Str)
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = StringVal(p)
	}
	return ListVal(out), nil
}

func builtinJoin(args []Value) (Value, error) {
	if err := expectArgs("string-join", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("string-join", args[0], ValList); err != nil {
		return Value{}, err
	}
	if err := expectKind("string-join", args[1], ValString); err != nil {
		return Value{}, err
	}
	parts := make([]string, len(args[0].List))
	for i, v := range args[0].List {
		parts[i] = v.String()
	}
	return StringVal(strings.Join(parts, args[1].Str)), nil
}

func builtinTrim(args []Value) (Value, error) {
	if err := stringArgs("string-trim", args, 1); err != nil {
		return Value{}, err
	}
	return StringVal(strings.TrimSpace(args[0].Str)), nil
}

func builtinReplace(args []Value) (Value, error) {
	if err := stringArgs("string-replace", args, 3); err != nil {
		return Value{}, err
	}
	return StringVal(strings.ReplaceAll(args[0].Str, args[1].Str, args[2].Str)), nil
}

func builtinStrlen(args []Value) (Value, error) {
	if err := stringArgs("string-length", args, 1); err != nil {
		return Value{}, err
	}
	return IntVal(int64(utf8.RuneCountInString(args[0].Str))), nil
}

// --- Types ---

func builtinToString(args []Value) (Value, error) {
	if err := expectArgs("to-string", args, 1); err != nil {
		return Value{}, err
	}
	return StringVal(args[0].String()), nil
}

func builtinToInt(args []Value) (Value, error) {
	if err := expectArgs("to-int", args, 1); err != nil {
		return Value{}, err
	}
	v := args[0]
	switch v.Kind {
	case ValInt:
		return v, nil
	case ValFloat:
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
		if math.IsNaN(v.Float) || v.Float < math.MinInt64 || v.Float >= math.MaxInt64 {
			return Value{}, typeError("to-int: %v out of int range", v.Float)
		}
		return IntVal(int64(v.Float)), nil
	case ValBool:
		if v.Bool {
			return IntVal(1), nil
		}
		return IntVal(0), nil
	case ValString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return Value{}, typeError("to-int: cannot convert %q to int", v.Str)
		}
		return IntVal(n), nil
	default:
		return Value{}, typeError("to-int: cannot convert %s to int", v.KindName())
	}
}

func builtinToFloat(args []Value) (Value, error) {
	if err := expectArgs("to-float", args, 1); err != nil {
		return Value{}, err
	}
	v := args[0]
	switch v.Kind {
	case ValFloat:
		return v, nil
	case ValInt:
		return FloatVal(float64(v.Int)), nil
	case ValString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return Value{}, typeError("to-float: cannot convert %q to float", v.Str)
		}
		return FloatVal(f), nil
	default:
		return Value{}, typeError("to-float: cannot convert %s to float", v.KindName())
	}
}

func builtinTypeOf(args []Value) (Value, error) {
	if err := expectArgs("type-of", args, 1); err != nil {
		return Value{}, err
	}
	return StringVal(args[0].KindName()), nil
}

// --- Evaluator-bound ---

func (e *Evaluator) builtinPrint(args []Value) (Value, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(a.String())
	}
	sb.WriteByte('\n')
	if _, err := fmt.Fprint(e.Stdout, sb.String()); err != nil {
		return Value{}, runtimeError("print: %v", err)
	}
	return NullVal(), nil
}

func (e *Evaluator) lambdaArg(name string, v Value, arity int) error {
	if v.Kind != ValLambda {
		return typeError("%s: expected lambda, got %s", name, v.KindName())
	}
	if len(v.Params) != arity {
		return runtimeError("%s: function must accept exactly %d argument(s)", name, arity)
	}
	return nil
}

// (map f list)
func (e *Evaluator) builtinMap(args []Value) (Value, error) {
	if err := expectArgs("map", args, 2); err != nil {
		return Value{}, err
	}
	if err := e.lambdaArg("map", args[0], 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("map", args[1], ValList); err != nil {
		return Value{}, err
	}
	out := make([]Value, len(args[1].List))
	for i, item := range args[1].List {
		v, err := e.callLambda(args[0], []Value{item})
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return ListVal(out), nil
}

// (filter pred list)
func (e *Evaluator) builtinFilter(args []Value) (Value, error) {
	if err := expectArgs("filter", args, 2); err != nil {
		return Value{}, err
	}
	if err := e.lambdaArg("filter", args[0], 1); err != nil {
		return Value{}, err
	}
	if err := expectKind("filter", args[1], ValList); err != nil {
		return Value{}, err
	}
	var out []Value
	for _, item := range args[1].List {
		keep, err := e.callLambda(args[0], []Value{item})
		if err != nil {
			return Value{}, err
		}
		if keep.Truthy() {
			out = append(out, item)
		}
	}
	return ListVal(out), nil
}

// (reduce f init list), f is called as (f acc item).
func (e *Evaluator) builtinReduce(args []Value) (Value, error) {
	if err := expectArgs("reduce", args, 3); err != nil {
		return Value{}, err
	}
	if err := e.lambdaArg("reduce", args[0], 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("reduce", args[2], ValList); err != nil {
		return Value{}, err
	}
	acc := args[1]
	for _, item := range args[2].List {
		var err error
		if acc, err = e.callLambda(args[0], []Value{acc, item}); err != nil {
			return Value{}, err
		}
	}
	return acc, nil
}

// (sort list [less]). Without a comparator numbers and strings sort
// ascending. The comparator may return a bool (a before b) or an int
// (negative when a comes first).
func (e *Evaluator) builtinSort(args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return Value{}, runtimeError("list-sort: expected 1-2 args (list [comparator]), got %d", len(args))
	}
	if err := expectKind("list-sort", args[0], ValList); err != nil {
		return Value{}, err
	}
	if len(args) == 2 {
		if err := e.lambdaArg("list-sort", args[1], 2); err != nil {
			return Value{}, err
		}
	}
	out := append([]Value(nil), args[0].List...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		if len(args) == 1 {
			cmp, err := compareValues(OpLt, out[i], out[j])
			if err != nil {
				sortErr = err
				return false
			}
			return cmp < 0
		}
		r, err := e.callLambda(args[1], []Value{out[i], out[j]})
		if err != nil {
			sortErr = err
			return false
		}
		if r.Kind == ValInt {
			return r.Int < 0
		}
		return r.Truthy()
	})
	if sortErr != nil {
		return Value{}, sortErr
	}
	return ListVal(out), nil
}

// (apply f args-list)
func (e *Evaluator) builtinApply(args []Value) (Value, error) {
	if err := expectArgs("apply", args, 2); err != nil {
		return Value{}, err
	}
	if err := expectKind("apply", args[0], ValLambda); err != nil {
		return Value{}, err
	}
	if err := expectKind("apply", args[1], ValList); err != nil {
		return Value{}, err
	}
	return e.callLambda(args[0], args[1].List)
}
