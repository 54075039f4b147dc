package lsp

import "encoding/json"

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage, raw []byte) error {
	if len(msg.Params) > 0 {
		var params didChangeConfigurationParams
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			s.applySettings(params.Settings)
		}
	}
	return s.forwardBackend(raw)
}

func (s *Server) applySettings(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var settings proxySettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.NBConcat.LSP.Trace != nil {
		s.traceLSP = *settings.NBConcat.LSP.Trace
	}
}
