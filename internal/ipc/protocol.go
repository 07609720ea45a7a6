package ipc

import "encoding/json"

const jsonRPCVersion = "2.0"

// Envelope is the single post-authentication message. It carries no id:
// at most one request is in flight per channel.
type Envelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Message is an Envelope as decoded by the peer side.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// NewEnvelope builds a JSON-RPC 2.0 envelope.
func NewEnvelope(method string, params any) Envelope {
	return Envelope{JSONRPC: jsonRPCVersion, Method: method, Params: params}
}
