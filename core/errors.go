package evo

import (
	"errors"
	"fmt"
	"strings"
)

type ParseErrorKind int

const (
	SyntaxError ParseErrorKind = iota
	UnknownSyntax
	RuleConflict
)

func (k ParseErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case UnknownSyntax:
		return "unknown syntax"
	case RuleConflict:
		return "rule conflict"
	default:
		return "parse error"
	}
}

// ParseError is returned by Parse. Line and Col are 1-based; zero means the
// position is unknown.
type ParseError struct {
	Kind ParseErrorKind
	Msg  string
	Line int
	Col  int
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Col, e.Msg)
}

func syntaxErrorAt(line, col int, format string, args ...any) *ParseError {
	return &ParseError{Kind: SyntaxError, Msg: fmt.Sprintf(format, args...), Line: line, Col: col}
}

type ErrorKind int

const (
	UndefinedVariable ErrorKind = iota
	TypeError
	DivisionByZero
	RuntimeError
)

// InterpreterError is the only error type produced by evaluation. It is the
// error a try form catches.
type InterpreterError struct {
	Kind ErrorKind
	Name string // the unbound name, for UndefinedVariable
	Msg  string
}

func (e *InterpreterError) Error() string {
	switch e.Kind {
	case UndefinedVariable:
		return fmt.Sprintf("Undefined variable '%s'", e.Name)
	case TypeError:
		return "Type error: " + e.Msg
	case DivisionByZero:
		return "Division by zero"
	default:
		return "Runtime error: " + e.Msg
	}
}

func undefinedVariable(name string) *InterpreterError {
	return &InterpreterError{Kind: UndefinedVariable, Name: name}
}

func typeError(format string, args ...any) *InterpreterError {
	return &InterpreterError{Kind: TypeError, Msg: fmt.Sprintf(format, args...)}
}

func divisionByZero() *InterpreterError {
	return &InterpreterError{Kind: DivisionByZero}
}

func runtimeError(format string, args ...any) *InterpreterError {
	return &InterpreterError{Kind: RuntimeError, Msg: fmt.Sprintf(format, args...)}
}

// asInterpreterError coerces any error surfacing from evaluation into an
// InterpreterError so callers see a single taxonomy.
func asInterpreterError(err error) *InterpreterError {
	var ie *InterpreterError
	if errors.As(err, &ie) {
		return ie
	}
	return runtimeError("%v", err)
}

// IsErrorKind reports whether err is an InterpreterError of the given kind.
func IsErrorKind(err error, kind ErrorKind) bool {
	var ie *InterpreterError
	return errors.As(err, &ie) && ie.Kind == kind
}

// FormatParseError renders a parse error with one line of context on each
// side and a caret under the offending column. Other errors are returned as
// their plain message.
func FormatParseError(err error, src string) string {
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line == 0 {
		return err.Error()
	}
	lines := strings.Split(src, "\n")
	line := pe.Line
	if line > len(lines) {
		line = len(lines)
	}
	col := pe.Col
	if col < 1 {
		col = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", pe.Error())
	if line > 1 {
		fmt.Fprintf(&b, "%4d | %s\n", line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "%4d | %s\n", line, lines[line-1])
	fmt.Fprintf(&b, "     | %s^\n", strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "%4d | %s\n", line+1, lines[line])
	}
	return b.String()
}
