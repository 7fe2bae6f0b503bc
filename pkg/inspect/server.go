// Package inspect serves a live stage and its frame trace over HTTP.
//
// Endpoints:
//
//	/health   {"status":"ok"}
//	/tree     the stage's node tree as JSON
//	/frames   the traced frames of the loop; ?limit=N keeps the newest
//	          N samples, ?min_ms=X keeps frames at least X ms long
//
// Nodes guard their own state, so handlers read the tree while the loop
// keeps stepping on another goroutine.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/stage"
)

// maxTreeDepth limits recursion on malformed trees.
const maxTreeDepth = 500

// FrameSource provides traced frames. *engine.Loop implements it.
type FrameSource interface {
	Frames() engine.FrameTimeline
}

// Options configures a Server. Frames may be nil, in which case /frames
// answers 503.
type Options struct {
	Stage  *stage.Stage
	Frames FrameSource
	Logger *slog.Logger
}

// TreeNode is a node in the serialized stage tree.
type TreeNode struct {
	ID        int            `json:"id"`
	Type      string         `json:"type"`
	State     string         `json:"state"`
	Props     map[string]any `json:"props,omitempty"`
	Children  []TreeNode     `json:"children,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Server is an inspection HTTP server.
type Server struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New returns a server for opts. It does not listen until Start.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{opts: opts, log: log}
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tree", s.handleTree)
	mux.HandleFunc("/frames", s.handleFrames)
	return mux
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when the port is 0. Starting a running
// server returns its current address.
func (s *Server) Start(addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String(), nil
	}

	// bind first to fail fast on port conflicts
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("inspect listen: %w", err)
	}
	server := &http.Server{Handler: s.Handler()}
	s.server = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.mu.Lock()
			s.server = nil
			s.listener = nil
			s.mu.Unlock()
			s.log.Error("inspect server failed", "err", err)
		}
	}()
	s.log.Info("inspect server listening", "addr", listener.Addr().String())
	return listener.Addr().String(), nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Stage == nil {
		http.Error(w, "no stage", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, Snapshot(s.opts.Stage.RootNode()))
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Frames == nil {
		http.Error(w, "frame tracing disabled", http.StatusServiceUnavailable)
		return
	}
	timeline := s.opts.Frames.Frames()
	filterFrames(r, &timeline)
	writeJSON(w, timeline)
}

// Snapshot serializes the subtree rooted at n.
func Snapshot(n *stage.Node) TreeNode {
	return snapshot(n, 0)
}

func snapshot(n *stage.Node, depth int) TreeNode {
	node := TreeNode{
		ID:    n.ID(),
		Type:  n.Type(),
		State: n.RenderState().String(),
	}
	if props := n.Props(); len(props) > 0 {
		node.Props = make(map[string]any, len(props))
		for k, v := range props {
			node.Props[k] = jsonValue(v)
		}
	}
	children := n.Children()
	if depth >= maxTreeDepth {
		node.Truncated = len(children) > 0
		return node
	}
	for _, c := range children {
		node.Children = append(node.Children, snapshot(c, depth+1))
	}
	return node
}

// jsonValue maps a property value to something encoding/json accepts.
// Non-finite floats become strings and values of other kinds are printed.
func jsonValue(v any) any {
	switch v := v.(type) {
	case nil, bool, string, int, int64, uint32:
		return v
	case float64:
		switch {
		case math.IsInf(v, 1):
			return "Infinity"
		case math.IsInf(v, -1):
			return "-Infinity"
		case math.IsNaN(v):
			return "NaN"
		}
		return v
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = jsonValue(e)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = jsonValue(e)
		}
		return s
	default:
		return fmt.Sprint(v)
	}
}

func filterFrames(r *http.Request, timeline *engine.FrameTimeline) {
	if v := parseFloatQuery(r, "min_ms"); v > 0 {
		filtered := make([]engine.FrameSample, 0, len(timeline.Samples))
		for _, s := range timeline.Samples {
			if s.Ms >= v {
				filtered = append(filtered, s)
			}
		}
		timeline.Samples = filtered
	}
	if value := r.URL.Query().Get("limit"); value != "" {
		if limit, err := strconv.Atoi(value); err == nil && limit > 0 && len(timeline.Samples) > limit {
			timeline.Samples = timeline.Samples[len(timeline.Samples)-limit:]
		}
	}
}

func parseFloatQuery(r *http.Request, key string) float64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return 0
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, v any) {
	// encode to a buffer first so errors still get a proper status
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
