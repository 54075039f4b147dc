// Package lsp implements a stdio proxy between an editor hosting notebooks
// and a language server that only understands plain files. Notebook cell
// events are folded into one concatenated document per notebook; all other
// traffic passes through unchanged.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"nbconcat/internal/concat"
	"nbconcat/internal/nburi"
	"nbconcat/internal/notebook"
	"nbconcat/internal/protocol"
	"nbconcat/internal/trace"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// recentOnFailure is how many trace events are dumped when an event is dropped.
const recentOnFailure = 64

// Recorder receives every cell event before it is applied.
type Recorder interface {
	Record(ev concat.Event) error
}

// ServerOptions configures the proxy.
type ServerOptions struct {
	Notebook notebook.Options
	Tracer   trace.Tracer
	Recorder Recorder
	// Log receives human readable messages. Defaults to stderr.
	Log io.Writer
}

// Server forwards traffic between the host editor and the backend.
type Server struct {
	in      *bufio.Reader
	host    *conn
	backend *conn
	hostMu  sync.Mutex
	backMu  sync.Mutex

	// mu guards the fields below.
	mu                sync.Mutex
	conv              *notebook.Converter
	pending           map[string]pendingRequest
	shutdownRequested bool
	traceLSP          bool

	requestSeq uint64
	recorder   Recorder
	tracer     trace.Tracer
	log        io.Writer
}

// NewServer constructs a proxy reading host messages from hostIn.
func NewServer(hostIn io.Reader, hostOut, backendOut io.Writer, opts ServerOptions) *Server {
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	if opts.Notebook.Tracer == nil {
		opts.Notebook.Tracer = opts.Tracer
	}
	if opts.Log == nil {
		opts.Log = os.Stderr
	}
	return &Server{
		in:       bufio.NewReader(hostIn),
		host:     &conn{name: "host", w: bufio.NewWriter(hostOut)},
		backend:  &conn{name: "backend", w: bufio.NewWriter(backendOut)},
		conv:     notebook.NewConverter(opts.Notebook),
		pending:  make(map[string]pendingRequest),
		recorder: opts.Recorder,
		tracer:   opts.Tracer,
		log:      opts.Log,
	}
}

// Run serves host messages until exit or end of input.
func (s *Server) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse host message: %v", err)
			continue
		}
		if msg.isResponse() {
			// answer to a request the backend sent through us
			if err := s.forwardBackend(payload); err != nil {
				return err
			}
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg, payload); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage, raw []byte) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return s.forwardBackend(raw)
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if err := s.forwardBackend(raw); err != nil {
			s.logf("failed to forward exit: %v", err)
		}
		s.mu.Lock()
		requested := s.shutdownRequested
		s.mu.Unlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg, raw)
	case notebook.MethodDidOpen:
		return s.handleDidOpen(msg, raw)
	case notebook.MethodDidChange:
		return s.handleDidChange(msg, raw)
	case notebook.MethodDidClose:
		return s.handleDidClose(msg, raw)
	case "notebook/refresh":
		return s.handleRefresh(msg)
	case methodCancelRequest:
		return s.handleCancel(msg, raw)
	default:
		if msg.isRequest() {
			return s.handleRequest(msg, raw)
		}
		return s.forwardBackend(raw)
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params protocol.InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	trace.Point(s.tracer, trace.ScopeServer, "initialize", params.RootURI)
	if err := s.requestBackend("initialize", msg.Params); err != nil {
		return err
	}
	result := protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
			},
		},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	if err := s.requestBackend("shutdown", nil); err != nil {
		s.logf("failed to forward shutdown: %v", err)
	}
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage, raw []byte) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	if !nburi.IsNotebookCell(params.TextDocument.URI) {
		return s.forwardBackend(raw)
	}
	return s.apply(concat.OpenEvent(params))
}

func (s *Server) handleDidChange(msg *rpcMessage, raw []byte) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	if !nburi.IsNotebookCell(params.TextDocument.URI) {
		return s.forwardBackend(raw)
	}
	return s.apply(concat.ChangeEvent(params))
}

func (s *Server) handleDidClose(msg *rpcMessage, raw []byte) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	if !nburi.IsNotebookCell(params.TextDocument.URI) {
		return s.forwardBackend(raw)
	}
	return s.apply(concat.CloseEvent(params))
}

func (s *Server) handleRefresh(msg *rpcMessage) error {
	var params protocol.RefreshNotebookParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	return s.apply(concat.RefreshEvent(params))
}

// apply records ev, runs it through the converter and sends the resulting
// notifications to the backend in order.
func (s *Server) apply(ev concat.Event) error {
	sp := trace.Begin(s.tracer, trace.ScopeServer, eventName(ev), 0)
	defer sp.End(concat.EventURI(ev))
	if s.recorder != nil {
		if err := s.recorder.Record(ev); err != nil {
			s.logf("journal: %v", err)
		}
	}
	s.mu.Lock()
	notes, err := s.convert(ev)
	verbose := s.traceLSP
	s.mu.Unlock()
	if err != nil {
		s.logf("dropping %s for %s: %v", eventName(ev), concat.EventURI(ev), err)
		sp.WithExtra("error", err.Error())
		trace.Fail(s.tracer, trace.ScopeServer, eventName(ev), err)
		if trace.DumpRecent(s.tracer, s.log, recentOnFailure) {
			s.logf("recent trace events dumped above")
		}
		return nil
	}
	for _, n := range notes {
		if verbose {
			s.logf("%s %s -> %s", eventName(ev), concat.EventURI(ev), n.Method)
		}
		if err := s.notifyBackend(n.Method, n.Params); err != nil {
			return err
		}
	}
	return nil
}

// Status summarizes the proxy state for heartbeats.
func (s *Server) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("notebooks=%d pending=%d", len(s.conv.Notebooks()), len(s.pending))
}

// convert must be called with mu held. Contract violations by the host
// surface as panics in the document and are reported as errors here.
func (s *Server) convert(ev concat.Event) (notes []notebook.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return s.conv.Handle(ev), nil
}

func eventName(ev concat.Event) string {
	switch ev.(type) {
	case concat.OpenEvent:
		return "didOpen"
	case concat.ChangeEvent:
		return "didChange"
	case concat.CloseEvent:
		return "didClose"
	case concat.RefreshEvent:
		return "refresh"
	default:
		return "unknown"
	}
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	return s.sendHost(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	return s.sendHost(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) notifyHost(method string, params any) error {
	return s.sendHost(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *Server) sendHost(msg any) error {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	return s.host.writeJSON(msg)
}

func (s *Server) forwardHost(payload []byte) error {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	return s.host.writeRaw(payload)
}

func (s *Server) notifyBackend(method string, params any) error {
	s.backMu.Lock()
	defer s.backMu.Unlock()
	return s.backend.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

// track registers a request sent to the backend and returns its id.
func (s *Server) track(p pendingRequest) string {
	id := fmt.Sprintf("nbconcat-%d", atomic.AddUint64(&s.requestSeq, 1))
	s.mu.Lock()
	s.pending[id] = p
	s.mu.Unlock()
	return id
}

// requestBackend sends a request of the proxy's own. Its response is
// consumed by RunBackend.
func (s *Server) requestBackend(method string, params json.RawMessage) error {
	id := s.track(pendingRequest{method: method})
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if len(params) > 0 {
		msg["params"] = params
	}
	s.backMu.Lock()
	defer s.backMu.Unlock()
	return s.backend.writeJSON(msg)
}

func (s *Server) forwardBackend(payload []byte) error {
	s.backMu.Lock()
	defer s.backMu.Unlock()
	return s.backend.writeRaw(payload)
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(s.log, "nbconcat: "+format+"\n", args...)
}
