package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/juoon/evo-sub000/host"
)

var (
	conn   net.Conn
	connMu sync.Mutex
)

// send sends a request to evo-server and returns the response.
func send(req map[string]any) (map[string]any, error) {
	req["id"] = host.NextID()
	connMu.Lock()
	defer connMu.Unlock()
	if err := host.WriteMsg(conn, req); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	resp, err := host.ReadMsg(conn)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return resp, nil
}

// formatResult turns a server response into an MCP tool result. Printed
// output, when present, is returned alongside the value.
func formatResult(resp map[string]any) (*mcp.CallToolResult, error) {
	output, _ := resp["output"].(string)
	ok, _ := resp["ok"].(bool)
	if !ok {
		errMsg, _ := resp["error"].(string)
		if errMsg == "" {
			errMsg = "unknown error"
		}
		if output != "" {
			errMsg = output + errMsg
		}
		return mcp.NewToolResultError(errMsg), nil
	}
	var body any = resp["value"]
	if output != "" {
		body = map[string]any{"value": resp["value"], "output": output}
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := request.RequireString("src")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := send(map[string]any{"op": "eval", "src": src})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func handleParse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := request.RequireString("src")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := send(map[string]any{"op": "parse", "src": src})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func handleHotSpots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := map[string]any{"op": "hotspots"}
	if request.GetBool("persist", false) {
		req["persist"] = true
	}
	resp, err := send(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func handleTraces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := map[string]any{"op": "traces"}
	if n := request.GetInt("n", 0); n > 0 {
		req["n"] = n
	}
	resp, err := send(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := send(map[string]any{"op": "reset"})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func main() {
	sockPath := os.Getenv("EVO_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/evo.sock"
	}

	var err error
	conn, err = net.Dial("unix", sockPath)
	if err != nil {
		log.Fatalf("connect to evo server: %v", err)
	}
	defer conn.Close()
	log.Printf("connected to evo server: %s", sockPath)

	s := server.NewMCPServer(
		"evo",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("evo_execute",
			mcp.WithDescription("Execute evo source in the shared session. Definitions persist between calls. Returns the value of the last form and anything printed."),
			mcp.WithString("src",
				mcp.Required(),
				mcp.Description("evo source, e.g. (def sq (x) (* x x)) (sq 7)"),
			),
		),
		handleExecute,
	)
	s.AddTool(
		mcp.NewTool("evo_parse",
			mcp.WithDescription("Parse evo source without running it. Returns the desugared forms and the structural fingerprint."),
			mcp.WithString("src",
				mcp.Required(),
				mcp.Description("evo source to parse"),
			),
		),
		handleParse,
	)
	s.AddTool(
		mcp.NewTool("evo_hotspots",
			mcp.WithDescription("Show hot-spot statistics: fragments executed at least the threshold number of times and now running in constant-folded form."),
			mcp.WithBoolean("persist",
				mcp.Description("If true, also save all statistics to the server's profile database"),
			),
		),
		handleHotSpots,
	)
	s.AddTool(
		mcp.NewTool("evo_traces",
			mcp.WithDescription("Recent execute calls with their results, output, errors and durations."),
			mcp.WithNumber("n",
				mcp.Description("Number of most recent traces to return (default all)"),
			),
		),
		handleTraces,
	)
	s.AddTool(
		mcp.NewTool("evo_reset",
			mcp.WithDescription("Reset the session: drop all bindings, functions, lambdas, modules, hot-spot counters and traces."),
		),
		handleReset,
	)

	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
