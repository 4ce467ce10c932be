package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	evo "github.com/juoon/evo-sub000/core"
)

const (
	promptMain = "evo> "
	promptCont = "...  "
	banner     = "evo REPL. Ctrl+C cancels input, Ctrl+D exits. Type :help for commands."
	helpText   = `
REPL commands:
  :help            Show this help
  :quit / :exit    Exit the REPL
  :load <file>     Execute a file in the current session
  :hot             Show hot-spot statistics
  :reset           Clear every binding, function and module
`
)

func main() {
	var evalStr string
	flag.StringVar(&evalStr, "e", "", "execute the given source and exit")
	flag.Parse()

	opt := newOptimizer()

	switch {
	case evalStr != "":
		os.Exit(runSource(opt, evalStr))
	case flag.NArg() > 0:
		code := 0
		for _, path := range flag.Args() {
			src, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "evo: cannot read %s: %v\n", path, err)
				os.Exit(1)
			}
			if code = runSource(opt, string(src)); code != 0 {
				break
			}
		}
		os.Exit(code)
	default:
		os.Exit(runREPL(opt))
	}
}

// newOptimizer builds the evaluator from EVO_DIR, EVO_PATH and
// EVO_JIT_THRESHOLD.
func newOptimizer() *evo.Optimizer {
	ev := evo.NewEvaluator()
	ev.ModuleRoot = os.Getenv("EVO_DIR")
	if ev.ModuleRoot == "" {
		ev.ModuleRoot = "."
	}
	if p := os.Getenv("EVO_PATH"); p != "" {
		ev.ModulePath = filepath.SplitList(p)
	}

	threshold := evo.DefaultThreshold
	if s := os.Getenv("EVO_JIT_THRESHOLD"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			log.Fatalf("invalid EVO_JIT_THRESHOLD %q: %v", s, err)
		}
		threshold = n
	}
	return evo.NewOptimizer(ev, evo.WithThreshold(threshold))
}

func runSource(opt *evo.Optimizer, src string) int {
	v, err := opt.ExecuteString(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, evo.FormatParseError(err, src))
		return 1
	}
	if v.Kind != evo.ValNull {
		fmt.Println(v.String())
	}
	return 0
}

func runREPL(opt *evo.Optimizer) int {
	fmt.Println(banner)

	histPath := os.Getenv("EVO_HISTORY")
	if histPath == "" {
		home, _ := os.UserHomeDir()
		histPath = filepath.Join(home, ".evo_history")
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readByParseProbe(ln)
		if !ok {
			fmt.Println()
			break
		}
		if strings.TrimSpace(code) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		if strings.HasPrefix(strings.TrimSpace(code), ":") {
			if done := handleReplCommand(opt, code); done {
				break
			}
			continue
		}

		v, err := opt.ExecuteString(code)
		if err != nil {
			fmt.Println(evo.FormatParseError(err, code))
			continue
		}
		fmt.Println(v.String())
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return 0
}

func handleReplCommand(opt *evo.Optimizer, line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":help":
		fmt.Print(helpText)
	case ":quit", ":exit":
		return true
	case ":reset":
		opt.Evaluator().Reset()
		opt.ClearCache()
		fmt.Println("session reset.")
	case ":load":
		if len(fields) < 2 {
			fmt.Println("usage: :load <file>")
			return false
		}
		src, err := os.ReadFile(fields[1])
		if err != nil {
			fmt.Printf("cannot read %s: %v\n", fields[1], err)
			return false
		}
		v, err := opt.ExecuteString(string(src))
		if err != nil {
			fmt.Println(evo.FormatParseError(err, string(src)))
			return false
		}
		fmt.Println(v.String())
	case ":hot":
		st := opt.Statistics()
		fmt.Printf("tracked %d, executions %d, compiled %d, threshold %d, enabled %v\n",
			st.TotalHotSpots, st.TotalExecutions, st.CompiledCount, st.Threshold, st.Enabled)
		for _, h := range opt.HotSpots() {
			fmt.Printf("  %6d runs  avg %-10s %s\n", h.Count, h.AvgTime(), h.Source)
		}
	default:
		fmt.Printf("unknown command %s (try :help)\n", fields[0])
	}
	return false
}

// readByParseProbe reads lines until the buffer parses, or until the parse
// error is one more input cannot fix.
func readByParseProbe(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C drops the pending input.
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := evo.Parse(src); err != nil && looksIncomplete(err) {
			continue
		}
		return src, true
	}
}

func looksIncomplete(err error) bool {
	var pe *evo.ParseError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Msg {
	case "unclosed list", "unterminated string", "unterminated escape in string", "quote expects a form":
		return true
	}
	return false
}
