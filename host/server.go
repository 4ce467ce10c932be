// Package host serves one optimizer-wrapped evaluator over a unix socket.
// A single actor goroutine owns the evaluator; every connection forwards
// its requests to it and waits for the reply.
package host

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	evo "github.com/juoon/evo-sub000/core"
	"github.com/juoon/evo-sub000/profile"
)

// Server is the actor that owns the optimizer and its evaluator.
type Server struct {
	opt       *evo.Optimizer
	store     *profile.Store
	requests  chan request
	done      chan struct{} // closed when the actor exits
	listener  net.Listener

	mu     sync.RWMutex // guards closed and sends on requests
	closed bool

	traces    []Trace
	maxTraces int
}

type request struct {
	msg      map[string]any
	response chan map[string]any
}

// NewServer listens on sockPath. store may be nil, in which case hot-spot
// statistics are kept in memory only.
func NewServer(sockPath string, opt *evo.Optimizer, store *profile.Store) (*Server, error) {
	// Clean up a stale socket
	os.Remove(sockPath)

	s := newServer(opt, store)
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.listener = listener
	return s, nil
}

func newServer(opt *evo.Optimizer, store *profile.Store) *Server {
	return &Server{
		opt:       opt,
		store:     store,
		requests:  make(chan request, 64),
		done:      make(chan struct{}),
		maxTraces: 1000,
	}
}

// Run starts the actor goroutine and accepts connections. Blocks until
// Shutdown closes the listener.
func (s *Server) Run() {
	go s.actorLoop()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleClientConnection(conn)
	}
}

// Shutdown persists statistics when a store is configured, then stops the
// server. Requests arriving afterwards get an error response. It waits for
// the actor to finish before closing the store, so Run must have started.
func (s *Server) Shutdown() {
	s.listener.Close()
	if s.store != nil {
		resp := s.sendToActor(map[string]any{"op": "hotspots", "persist": true})
		if ok, _ := resp["ok"].(bool); !ok {
			log.Printf("persist hot spots: %v", resp["error"])
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.requests)
	s.mu.Unlock()
	<-s.done

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close profile store: %v", err)
		}
	}
}

// actorLoop is the single goroutine that touches the evaluator.
func (s *Server) actorLoop() {
	defer close(s.done)
	for req := range s.requests {
		req.response <- s.handleRequest(req.msg)
	}
}

func (s *Server) sendToActor(msg map[string]any) map[string]any {
	resp := make(chan map[string]any, 1)
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		id, _ := msg["id"].(string)
		return errorResponse(id, "server is shutting down")
	}
	s.requests <- request{msg: msg, response: resp}
	s.mu.RUnlock()
	return <-resp
}

func (s *Server) handleRequest(msg map[string]any) map[string]any {
	id, _ := msg["id"].(string)

	op, _ := msg["op"].(string)
	switch op {
	case "":
		return s.manual(id)
	case "eval":
		return s.handleEval(id, msg)
	case "parse":
		return s.handleParse(id, msg)
	case "hotspots":
		return s.handleHotSpots(id, msg)
	case "traces":
		return s.handleTraces(id, msg)
	case "reset":
		return s.handleReset(id)
	default:
		return errorResponse(id, fmt.Sprintf("unknown op: %s", op))
	}
}

func (s *Server) manual(id string) map[string]any {
	return map[string]any{
		"id": id,
		"ok": true,
		"value": map[string]any{
			"name":    "evo-server",
			"version": "1.0.0",
			"ops": map[string]any{
				"eval":     "Execute evo source in the session. Params: src (string)",
				"parse":    "Parse evo source without running it. Params: src (string)",
				"hotspots": "Hot-spot statistics. Params: persist (bool, optional) saves them to the profile database",
				"traces":   "Recent eval traces. Params: n (int, optional)",
				"reset":    "Clear every binding, function, lambda, module and hot-spot counter.",
			},
			"forms": []any{
				"def", "function", "let", "if", "lambda", "match", "for", "while",
				"try", "set!", "begin", "do", "quote", "list", "dict", "import",
			},
			"threshold": s.opt.Threshold(),
			"enabled":   s.opt.Enabled(),
		},
	}
}

func (s *Server) handleEval(id string, msg map[string]any) map[string]any {
	src, ok := msg["src"].(string)
	if !ok {
		return errorResponse(id, "eval: missing 'src' string")
	}

	trace := &Trace{
		Src:       src,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	elems, err := evo.Parse(src)
	if err != nil {
		trace.Error = evo.FormatParseError(err, src)
		s.appendTrace(trace)
		return errorResponse(id, trace.Error)
	}
	trace.Fingerprint = evo.Fingerprint(elems)

	var out bytes.Buffer
	ev := s.opt.Evaluator()
	prev := ev.Stdout
	ev.Stdout = &out
	start := time.Now()
	val, err := s.opt.Execute(elems)
	trace.Duration = time.Since(start)
	ev.Stdout = prev
	trace.Output = out.String()

	if err != nil {
		trace.Error = err.Error()
		s.appendTrace(trace)
		resp := errorResponse(id, err.Error())
		if trace.Output != "" {
			resp["output"] = trace.Output
		}
		return resp
	}
	trace.Result = val
	s.appendTrace(trace)

	resp := map[string]any{"id": id, "ok": true, "value": goValue(val)}
	if trace.Output != "" {
		resp["output"] = trace.Output
	}
	return resp
}

func (s *Server) handleParse(id string, msg map[string]any) map[string]any {
	src, ok := msg["src"].(string)
	if !ok {
		return errorResponse(id, "parse: missing 'src' string")
	}
	elems, err := evo.Parse(src)
	if err != nil {
		return errorResponse(id, evo.FormatParseError(err, src))
	}
	forms := make([]any, len(elems))
	for i, el := range elems {
		forms[i] = el.String()
	}
	return map[string]any{
		"id": id,
		"ok": true,
		"value": map[string]any{
			"forms":       forms,
			"fingerprint": evo.Fingerprint(elems),
		},
	}
}

func (s *Server) handleHotSpots(id string, msg map[string]any) map[string]any {
	persist, _ := msg["persist"].(bool)
	all := s.opt.AllStats()
	if persist {
		if s.store == nil {
			return errorResponse(id, "hotspots: no profile database configured")
		}
		if err := s.store.Save(all); err != nil {
			return errorResponse(id, fmt.Sprintf("hotspots: %v", err))
		}
	}

	hot := s.opt.HotSpots()
	spots := make([]any, len(hot))
	for i, st := range hot {
		spots[i] = statsToGo(st)
	}
	stats := s.opt.Statistics()
	return map[string]any{
		"id": id,
		"ok": true,
		"value": map[string]any{
			"statistics": map[string]any{
				"total_hot_spots":  stats.TotalHotSpots,
				"total_executions": stats.TotalExecutions,
				"compiled_count":   stats.CompiledCount,
				"threshold":        stats.Threshold,
				"enabled":          stats.Enabled,
			},
			"hot_spots": spots,
			"persisted": persist,
		},
	}
}

// handleTraces: {"op": "traces"} or {"op": "traces", "n": N} returns the
// last N traces, oldest first.
func (s *Server) handleTraces(id string, msg map[string]any) map[string]any {
	n := len(s.traces)
	if raw, ok := msg["n"]; ok {
		f, ok := raw.(float64)
		if !ok || f < 0 {
			return errorResponse(id, "traces: 'n' must be a non-negative number")
		}
		if int(f) < n {
			n = int(f)
		}
	}
	start := len(s.traces) - n
	result := make([]any, n)
	for i := 0; i < n; i++ {
		result[i] = goValue(s.traces[start+i].ToValue())
	}
	return map[string]any{"id": id, "ok": true, "value": result}
}

func (s *Server) handleReset(id string) map[string]any {
	s.opt.Evaluator().Reset()
	s.opt.ClearCache()
	s.traces = nil
	return map[string]any{"id": id, "ok": true, "value": "reset"}
}

// appendTrace adds a trace and enforces the maxTraces cap.
func (s *Server) appendTrace(t *Trace) {
	s.traces = append(s.traces, *t)
	if len(s.traces) > s.maxTraces {
		excess := len(s.traces) - s.maxTraces
		s.traces = s.traces[excess:]
	}
}

func errorResponse(id, errMsg string) map[string]any {
	return map[string]any{"id": id, "ok": false, "error": errMsg}
}

// goValue converts a result for JSON. Values holding a lambda have no JSON
// form and are sent as their printed representation.
func goValue(v evo.Value) any {
	g, err := evo.ValueToGo(v)
	if err != nil {
		return v.String()
	}
	return g
}

func statsToGo(st evo.HotSpotStats) map[string]any {
	m := map[string]any{
		"fingerprint":    st.Fingerprint,
		"source":         st.Source,
		"count":          st.Count,
		"total_us":       st.TotalTime.Microseconds(),
		"avg_us":         st.AvgTime().Microseconds(),
		"compiled":       st.Compiled,
		"optimized_runs": st.OptimizedRuns,
	}
	if !st.LastRun.IsZero() {
		m["last_run"] = st.LastRun.UTC().Format(time.RFC3339)
	}
	if !st.CompiledAt.IsZero() {
		m["compiled_at"] = st.CompiledAt.UTC().Format(time.RFC3339)
	}
	return m
}

// --- Connection handling ---

func (s *Server) handleClientConnection(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := ReadMsg(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("read client message: %v", err)
			}
			return
		}

		resp := s.sendToActor(msg)
		if err := WriteMsg(conn, resp); err != nil {
			log.Printf("write client response: %v", err)
			return
		}
	}
}
