package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"

	"nbconcat/internal/protocol"
)

const methodPublishDiagnostics = "textDocument/publishDiagnostics"

// RunBackend reads backend messages until end of input. Diagnostics for the
// concatenated documents are split per cell. Responses to the proxy's own
// requests are consumed and responses to rewritten cell requests are mapped
// back to the cells. Everything else is forwarded to the host.
func (s *Server) RunBackend(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := readMessage(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse backend message: %v", err)
			continue
		}
		switch {
		case msg.Method == methodPublishDiagnostics:
			err = s.handlePublishDiagnostics(&msg, payload)
		case msg.isResponse():
			err = s.handleResponse(&msg, payload)
		default:
			err = s.forwardHost(payload)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) handlePublishDiagnostics(msg *rpcMessage, raw []byte) error {
	var params protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("invalid diagnostics from backend: %v", err)
		return nil
	}
	s.mu.Lock()
	mapped, ok := s.conv.MapDiagnostics(params)
	s.mu.Unlock()
	if !ok {
		return s.forwardHost(raw)
	}
	for _, p := range mapped {
		if err := s.notifyHost(methodPublishDiagnostics, p); err != nil {
			return err
		}
	}
	return nil
}
