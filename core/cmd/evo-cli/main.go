package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/juoon/evo-sub000/host"
)

const usage = `usage:
  evo-cli -e '(+ 1 2)'           execute source in the server session
  evo-cli file.evo ...           execute each file in order
  evo-cli -op parse -e '(f x)'   parse without running
  evo-cli -op hotspots [-persist]
  evo-cli -op traces [-n 5]
  evo-cli -op reset
  evo-cli < request.json         send a raw JSON request
`

type options struct {
	op      string
	src     string
	persist bool
	n       int
	raw     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.op, "op", "", "operation: eval, parse, hotspots, traces, reset, manual")
	flag.StringVar(&opts.src, "e", "", "source text for eval or parse")
	flag.BoolVar(&opts.persist, "persist", false, "with -op hotspots: save statistics to the profile database")
	flag.IntVar(&opts.n, "n", 0, "with -op traces: number of recent traces")
	flag.BoolVar(&opts.raw, "raw", false, "print full JSON responses")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	sockPath := os.Getenv("EVO_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/evo.sock"
	}

	reqs, err := buildRequests(opts, flag.Args(), os.ReadFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evo-cli: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Requests share one connection, so files run in one session in order.
	for _, req := range reqs {
		if err := host.WriteMsg(conn, req); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
		resp, err := host.ReadMsg(conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "receive: %v\n", err)
			os.Exit(1)
		}
		if !printResponse(os.Stdout, os.Stderr, resp, opts.raw || req["op"] != "eval") {
			os.Exit(2)
		}
	}
}

// buildRequests turns flags and arguments into server requests. With no
// source, files or op it reads one raw JSON request from stdin.
func buildRequests(opts options, files []string, readFile func(string) ([]byte, error), stdin io.Reader) ([]map[string]any, error) {
	op := opts.op
	if op == "manual" {
		op = ""
	}

	switch {
	case len(files) > 0:
		if op != "" && op != "eval" && op != "parse" {
			return nil, fmt.Errorf("files can only be sent with eval or parse, not %s", op)
		}
		if op == "" {
			op = "eval"
		}
		reqs := make([]map[string]any, 0, len(files))
		for _, path := range files {
			data, err := readFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			reqs = append(reqs, map[string]any{"id": host.NextID(), "op": op, "src": string(data)})
		}
		return reqs, nil

	case opts.src != "":
		if op == "" {
			op = "eval"
		}
		if op != "eval" && op != "parse" {
			return nil, fmt.Errorf("-e can only be used with eval or parse, not %s", op)
		}
		return []map[string]any{{"id": host.NextID(), "op": op, "src": opts.src}}, nil

	case opts.op != "":
		req := map[string]any{"id": host.NextID(), "op": op}
		switch op {
		case "eval", "parse":
			return nil, fmt.Errorf("%s needs -e or a file", op)
		case "hotspots":
			if opts.persist {
				req["persist"] = true
			}
		case "traces":
			if opts.n > 0 {
				req["n"] = opts.n
			}
		}
		return []map[string]any{req}, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if _, ok := msg["id"]; !ok {
		msg["id"] = host.NextID()
	}
	return []map[string]any{msg}, nil
}

// printResponse writes a response and reports whether it succeeded. An
// eval response prints what the program printed, then its value; errors go
// to errw. raw prints the whole response as indented JSON.
func printResponse(w, errw io.Writer, resp map[string]any, raw bool) bool {
	ok, _ := resp["ok"].(bool)
	if raw {
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			fmt.Fprintf(errw, "format response: %v\n", err)
			return false
		}
		fmt.Fprintln(w, string(out))
		return ok
	}

	if output, _ := resp["output"].(string); output != "" {
		fmt.Fprint(w, output)
	}
	if !ok {
		fmt.Fprintln(errw, resp["error"])
		return false
	}
	if resp["value"] == nil {
		return true
	}
	out, err := json.Marshal(resp["value"])
	if err != nil {
		fmt.Fprintf(errw, "format value: %v\n", err)
		return false
	}
	fmt.Fprintln(w, string(out))
	return true
}
