package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"nbconcat/internal/concat"
	"nbconcat/internal/nburi"
	"nbconcat/internal/notebook"
	"nbconcat/internal/protocol"
	"nbconcat/internal/trace"
)

const methodCancelRequest = "$/cancelRequest"

// pendingRequest is a request the proxy sent to the backend under its own
// id. hostID is nil for requests of the proxy itself; otherwise the response
// goes back to the host under hostID. docURI names the synthetic document a
// cell request was rewritten to.
type pendingRequest struct {
	method string
	hostID json.RawMessage
	docURI string
}

// handleRequest forwards a host request to the backend. Requests about a
// notebook cell are moved into the synthetic document first and tracked so
// that the response can be mapped back.
func (s *Server) handleRequest(msg *rpcMessage, raw []byte) error {
	var params map[string]any
	if len(msg.Params) == 0 || json.Unmarshal(msg.Params, &params) != nil {
		return s.forwardBackend(raw)
	}
	uri := textDocumentURI(params)
	if uri == "" || !nburi.IsNotebookCell(uri) {
		return s.forwardBackend(raw)
	}

	s.mu.Lock()
	docURI, err := rewriteCellParams(s.conv, uri, params)
	s.mu.Unlock()
	if err != nil {
		trace.Point(s.tracer, trace.ScopeServer, "request.unmapped", msg.Method+" "+uri)
		return s.sendResponse(msg.ID, nil)
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}
	id := s.track(pendingRequest{method: msg.Method, hostID: msg.ID, docURI: docURI})
	trace.Point(s.tracer, trace.ScopeServer, "request", msg.Method+" "+id)
	s.backMu.Lock()
	defer s.backMu.Unlock()
	return s.backend.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  msg.Method,
		"params":  json.RawMessage(payload),
	})
}

// handleCancel rewrites the id of a cancellation for a tracked request.
func (s *Server) handleCancel(msg *rpcMessage, raw []byte) error {
	var params struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil || len(params.ID) == 0 {
		return s.forwardBackend(raw)
	}
	s.mu.Lock()
	var proxyID string
	for id, p := range s.pending {
		if p.hostID != nil && bytes.Equal(p.hostID, params.ID) {
			proxyID = id
			break
		}
	}
	s.mu.Unlock()
	if proxyID == "" {
		return s.forwardBackend(raw)
	}
	return s.notifyBackend(methodCancelRequest, map[string]any{"id": proxyID})
}

// handleResponse settles a backend response. Responses the proxy does not
// track go to the host unchanged.
func (s *Server) handleResponse(msg *rpcMessage, raw []byte) error {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		return s.forwardHost(raw)
	}
	s.mu.Lock()
	p, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return s.forwardHost(raw)
	}
	trace.Point(s.tracer, trace.ScopeServer, "backend.response", p.method)
	if p.hostID == nil {
		if msg.Error != nil {
			s.logf("backend %s failed: %d %s", p.method, msg.Error.Code, msg.Error.Message)
		}
		return nil
	}
	if msg.Error != nil {
		return s.sendError(p.hostID, msg.Error.Code, msg.Error.Message)
	}

	var result any
	if len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, &result); err != nil {
			s.logf("invalid %s result from backend: %v", p.method, err)
			return s.sendResponse(p.hostID, nil)
		}
	}
	s.mu.Lock()
	result = mapResult(s.conv, p.docURI, result)
	s.mu.Unlock()
	return s.sendResponse(p.hostID, result)
}

func textDocumentURI(params map[string]any) string {
	td, ok := params["textDocument"].(map[string]any)
	if !ok {
		return ""
	}
	uri, _ := td["uri"].(string)
	return uri
}

// rewriteCellParams moves the textDocument, position and range of a cell
// request into the synthetic document and returns its URI.
func rewriteCellParams(conv *notebook.Converter, uri string, params map[string]any) (string, error) {
	doc, ok := conv.DocumentFor(uri)
	if !ok || !slices.Contains(doc.Cells(), uri) {
		return "", fmt.Errorf("%w: %s", concat.ErrNotFound, uri)
	}
	if raw, ok := params["position"]; ok {
		var pos protocol.Position
		if err := remarshal(raw, &pos); err != nil {
			return "", err
		}
		loc, err := conv.ConcatLocation(protocol.Location{URI: uri, Range: protocol.EmptyRange(pos)})
		if err != nil {
			return "", err
		}
		params["position"] = loc.Range.Start
	}
	if raw, ok := params["range"]; ok {
		var r protocol.Range
		if err := remarshal(raw, &r); err != nil {
			return "", err
		}
		loc, err := conv.ConcatLocation(protocol.Location{URI: uri, Range: r})
		if err != nil {
			return "", err
		}
		params["range"] = loc.Range
	}
	td := params["textDocument"].(map[string]any)
	td["uri"] = doc.URI()
	return doc.URI(), nil
}

// Range fields that belong to the document of the request when the object
// carrying them names no document.
var requestRangeKeys = []string{"range", "selectionRange", "originSelectionRange"}

// mapResult rewrites every synthetic location in a decoded result into cell
// coordinates. Locations that cannot be mapped are left alone.
func mapResult(conv *notebook.Converter, docURI string, v any) any {
	switch v := v.(type) {
	case []any:
		for i := range v {
			v[i] = mapResult(conv, docURI, v[i])
		}
	case map[string]any:
		if uri, ok := v["uri"].(string); ok {
			if conv.IsConcatURI(uri) {
				if loc, ok := mapRange(conv, uri, v["range"]); ok {
					v["uri"], v["range"] = loc.URI, loc.Range
				}
			}
		} else if uri, ok := v["targetUri"].(string); ok && conv.IsConcatURI(uri) {
			if loc, ok := mapRange(conv, uri, v["targetRange"]); ok {
				v["targetUri"], v["targetRange"] = loc.URI, loc.Range
			}
			if loc, ok := mapRange(conv, uri, v["targetSelectionRange"]); ok {
				v["targetSelectionRange"] = loc.Range
			}
			if loc, ok := mapRange(conv, docURI, v["originSelectionRange"]); ok {
				v["originSelectionRange"] = loc.Range
			}
		} else if docURI != "" {
			for _, key := range requestRangeKeys {
				if loc, ok := mapRange(conv, docURI, v[key]); ok {
					v[key] = loc.Range
				}
			}
		}
		for key, child := range v {
			switch child.(type) {
			case []any, map[string]any:
				v[key] = mapResult(conv, docURI, child)
			}
		}
	}
	return v
}

func mapRange(conv *notebook.Converter, uri string, raw any) (protocol.Location, bool) {
	if raw == nil {
		return protocol.Location{}, false
	}
	// already mapped
	if _, ok := raw.(protocol.Range); ok {
		return protocol.Location{}, false
	}
	var r protocol.Range
	if err := remarshal(raw, &r); err != nil {
		return protocol.Location{}, false
	}
	loc, err := conv.NotebookLocation(protocol.Location{URI: uri, Range: r})
	if err != nil || loc.URI == "" {
		return protocol.Location{}, false
	}
	return loc, true
}

// remarshal converts a decoded JSON value into dst.
func remarshal(v any, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
