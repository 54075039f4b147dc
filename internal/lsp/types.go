package lsp

import "encoding/json"

// JSON-RPC error codes used by the proxy.
const (
	codeInvalidParams = -32602
)

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (m *rpcMessage) isRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

func (m *rpcMessage) isResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type didChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

type proxySettings struct {
	NBConcat nbconcatSettings `json:"nbconcat"`
}

type nbconcatSettings struct {
	LSP lspTraceSettings `json:"lsp"`
}

type lspTraceSettings struct {
	Trace *bool `json:"trace,omitempty"`
}
