package host

import (
	"net"
	"path/filepath"
	"strings"
	"testing"

	evo "github.com/juoon/evo-sub000/core"
	"github.com/juoon/evo-sub000/profile"
)

func testServer(threshold int) *Server {
	return newServer(evo.NewOptimizer(evo.NewEvaluator(), evo.WithThreshold(threshold)), nil)
}

func eval(t *testing.T, s *Server, src string) map[string]any {
	t.Helper()
	return s.handleRequest(map[string]any{"id": "t", "op": "eval", "src": src})
}

func TestManual(t *testing.T) {
	s := testServer(10)
	resp := s.handleRequest(map[string]any{"id": "m"})
	if resp["ok"] != true || resp["id"] != "m" {
		t.Fatalf("unexpected response %v", resp)
	}
	v := resp["value"].(map[string]any)
	if v["name"] != "evo-server" {
		t.Errorf("got name %v", v["name"])
	}
	ops := v["ops"].(map[string]any)
	for _, op := range []string{"eval", "parse", "hotspots", "traces", "reset"} {
		if _, ok := ops[op]; !ok {
			t.Errorf("manual missing op %s", op)
		}
	}
	if v["threshold"] != 10 {
		t.Errorf("got threshold %v, want 10", v["threshold"])
	}
}

func TestUnknownOp(t *testing.T) {
	resp := testServer(10).handleRequest(map[string]any{"id": "x", "op": "nope"})
	if resp["ok"] != false || resp["error"] != "unknown op: nope" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestEval(t *testing.T) {
	s := testServer(10)
	resp := eval(t, s, "(let x 20) (+ x 22)")
	if resp["ok"] != true {
		t.Fatalf("eval failed: %v", resp["error"])
	}
	if resp["value"] != int64(42) {
		t.Errorf("got %v (%T), want 42", resp["value"], resp["value"])
	}

	// Bindings persist across requests.
	resp = eval(t, s, "(list x \"a\")")
	got, ok := resp["value"].([]any)
	if !ok || len(got) != 2 || got[0] != int64(20) || got[1] != "a" {
		t.Errorf("got %v, want [20 a]", resp["value"])
	}
}

func TestEvalOutput(t *testing.T) {
	s := testServer(10)
	resp := eval(t, s, `(print "hi")`)
	if resp["ok"] != true {
		t.Fatalf("eval failed: %v", resp["error"])
	}
	if resp["output"] != "hi\n" {
		t.Errorf("got output %q, want %q", resp["output"], "hi\n")
	}
	if ev := s.opt.Evaluator(); ev.Stdout == nil {
		t.Errorf("stdout was not restored")
	}
}

func TestEvalErrors(t *testing.T) {
	s := testServer(10)
	resp := eval(t, s, "(/ 1 0)")
	if resp["ok"] != false || resp["error"] != "Division by zero" {
		t.Errorf("unexpected response %v", resp)
	}

	resp = eval(t, s, "(+ 1")
	if resp["ok"] != false {
		t.Fatalf("expected parse failure, got %v", resp)
	}
	if msg := resp["error"].(string); !strings.Contains(msg, "   1 | (+ 1") {
		t.Errorf("expected formatted parse error, got %q", msg)
	}

	resp = s.handleRequest(map[string]any{"op": "eval"})
	if resp["ok"] != false || !strings.Contains(resp["error"].(string), "src") {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestEvalLambdaResult(t *testing.T) {
	s := testServer(10)
	resp := eval(t, s, "(lambda (x) (* x 2))")
	if resp["ok"] != true {
		t.Fatalf("eval failed: %v", resp["error"])
	}
	if _, ok := resp["value"].(string); !ok {
		t.Errorf("expected lambda to be sent as text, got %T", resp["value"])
	}
}

func TestParse(t *testing.T) {
	s := testServer(10)
	resp := s.handleRequest(map[string]any{"op": "parse", "src": "(+ 1 2) (f x)"})
	if resp["ok"] != true {
		t.Fatalf("parse failed: %v", resp["error"])
	}
	v := resp["value"].(map[string]any)
	forms := v["forms"].([]any)
	if len(forms) != 2 {
		t.Fatalf("got %d forms, want 2", len(forms))
	}
	if fp, _ := v["fingerprint"].(string); fp == "" {
		t.Errorf("expected fingerprint")
	}

	// Parsing does not run anything.
	if st := s.opt.Statistics(); st.TotalExecutions != 0 {
		t.Errorf("parse executed code: %+v", st)
	}
}

func TestHotSpots(t *testing.T) {
	s := testServer(2)
	for i := 0; i < 3; i++ {
		if resp := eval(t, s, "(* (+ 1 2) 4)"); resp["value"] != int64(12) {
			t.Fatalf("run %d: got %v, want 12", i, resp["value"])
		}
	}
	eval(t, s, "(+ 5 5)")

	resp := s.handleRequest(map[string]any{"op": "hotspots"})
	if resp["ok"] != true {
		t.Fatalf("hotspots failed: %v", resp["error"])
	}
	v := resp["value"].(map[string]any)
	stats := v["statistics"].(map[string]any)
	if stats["total_hot_spots"] != 2 || stats["total_executions"] != 4 || stats["compiled_count"] != 1 {
		t.Errorf("unexpected statistics %v", stats)
	}
	spots := v["hot_spots"].([]any)
	if len(spots) != 1 {
		t.Fatalf("got %d hot spots, want 1", len(spots))
	}
	spot := spots[0].(map[string]any)
	if spot["source"] != "(* (+ 1 2) 4)" || spot["count"] != 3 || spot["compiled"] != true || spot["optimized_runs"] != 1 {
		t.Errorf("unexpected hot spot %v", spot)
	}
}

func TestHotSpotsPersistWithoutStore(t *testing.T) {
	resp := testServer(10).handleRequest(map[string]any{"op": "hotspots", "persist": true})
	if resp["ok"] != false {
		t.Fatalf("expected failure without a profile database, got %v", resp)
	}
}

func TestHotSpotsPersist(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profile.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	s := newServer(evo.NewOptimizer(evo.NewEvaluator()), store)
	eval(t, s, "(+ 1 2)")

	resp := s.handleRequest(map[string]any{"op": "hotspots", "persist": true})
	if resp["ok"] != true {
		t.Fatalf("persist failed: %v", resp["error"])
	}
	saved, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0].Source != "(+ 1 2)" || saved[0].Count != 1 {
		t.Errorf("unexpected saved profiles %+v", saved)
	}
}

func TestTraces(t *testing.T) {
	s := testServer(10)
	s.maxTraces = 2
	eval(t, s, "1")
	eval(t, s, "(/ 1 0)")
	eval(t, s, "3")

	resp := s.handleRequest(map[string]any{"op": "traces"})
	traces := resp["value"].([]any)
	if len(traces) != 2 {
		t.Fatalf("got %d traces, want 2", len(traces))
	}
	first := traces[0].(map[string]any)
	if first["src"] != "(/ 1 0)" || first["error"] != "Division by zero" || first["result"] != nil {
		t.Errorf("unexpected trace %v", first)
	}
	last := traces[1].(map[string]any)
	if last["result"] != int64(3) || last["error"] != nil {
		t.Errorf("unexpected trace %v", last)
	}

	resp = s.handleRequest(map[string]any{"op": "traces", "n": float64(1)})
	if got := resp["value"].([]any); len(got) != 1 || got[0].(map[string]any)["src"] != "3" {
		t.Errorf("unexpected traces %v", got)
	}

	resp = s.handleRequest(map[string]any{"op": "traces", "n": "two"})
	if resp["ok"] != false {
		t.Errorf("expected bad n to fail, got %v", resp)
	}
}

func TestReset(t *testing.T) {
	s := testServer(10)
	eval(t, s, "(let x 1)")
	resp := s.handleRequest(map[string]any{"op": "reset"})
	if resp["ok"] != true {
		t.Fatalf("reset failed: %v", resp["error"])
	}
	if resp := eval(t, s, "x"); resp["ok"] != false {
		t.Errorf("expected x to be gone after reset, got %v", resp)
	}
	// Only the failed lookup above is tracked.
	if st := s.opt.Statistics(); st.TotalExecutions != 1 {
		t.Errorf("expected counters cleared, got %+v", st)
	}
}

// --- Integration over a unix socket ---

func TestIntegration(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "evo.sock")
	store, err := profile.Open(filepath.Join(dir, "profile.db"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(sock, evo.NewOptimizer(evo.NewEvaluator(), evo.WithThreshold(2)), store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go s.Run()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	send := func(req map[string]any) map[string]any {
		t.Helper()
		req["id"] = NextID()
		if err := WriteMsg(conn, req); err != nil {
			t.Fatalf("write: %v", err)
		}
		resp, err := ReadMsg(conn)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp["id"] != req["id"] {
			t.Fatalf("got id %v, want %v", resp["id"], req["id"])
		}
		return resp
	}

	send(map[string]any{"op": "eval", "src": "(function sq (x) (* x x))"})
	for i := 0; i < 3; i++ {
		resp := send(map[string]any{"op": "eval", "src": "(sq 9)"})
		// Numbers arrive as JSON numbers.
		if resp["value"] != float64(81) {
			t.Fatalf("got %v, want 81", resp["value"])
		}
	}
	resp := send(map[string]any{"op": "hotspots"})
	stats := resp["value"].(map[string]any)["statistics"].(map[string]any)
	if stats["compiled_count"] != float64(1) {
		t.Errorf("got compiled_count %v, want 1", stats["compiled_count"])
	}
	conn.Close()

	s.Shutdown()

	reopened, err := profile.Open(filepath.Join(dir, "profile.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	saved, err := reopened.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 || saved[0].Source != "(sq 9)" || saved[0].Count != 3 {
		t.Errorf("expected profiles persisted on shutdown, got %+v", saved)
	}
}

func TestShutdownRejectsLateRequests(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "evo.sock")
	s, err := NewServer(sock, evo.NewOptimizer(evo.NewEvaluator()), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go s.Run()

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	roundTrip := func(src string) map[string]any {
		t.Helper()
		if err := WriteMsg(conn, map[string]any{"id": NextID(), "op": "eval", "src": src}); err != nil {
			t.Fatalf("write: %v", err)
		}
		resp, err := ReadMsg(conn)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return resp
	}

	if resp := roundTrip("(+ 1 2)"); resp["ok"] != true {
		t.Fatalf("eval failed: %v", resp["error"])
	}

	s.Shutdown()

	// The connection outlives the listener; its next request must get an
	// error instead of reaching the stopped actor.
	resp := roundTrip("(+ 3 4)")
	if resp["ok"] != false || resp["error"] != "server is shutting down" {
		t.Errorf("unexpected response after shutdown %v", resp)
	}

	// A second Shutdown is harmless.
	s.Shutdown()
}
