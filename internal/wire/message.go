package wire

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version spoken on every connection.
const Version = "2.0"

// Kind classifies a decoded message.
type Kind int

const (
	// KindInvalid indicates a body that is not a well-formed JSON-RPC message.
	KindInvalid Kind = iota
	// KindRequest has both an id and a method.
	KindRequest
	// KindResponse has an id and either a result or an error.
	KindResponse
	// KindNotification has a method but no id.
	KindNotification
)

// Message is a single JSON-RPC message. Requests carry ID and Method,
// responses carry ID and Result or Error, notifications carry Method only.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a peer-reported JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s (code %d, data %s)", e.Message, e.Code, string(e.Data))
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Standard JSON-RPC error codes.
const (
	// CodeParse indicates the peer could not parse a message.
	CodeParse = -32700
	// CodeInvalidRequest indicates a malformed request object.
	CodeInvalidRequest = -32600
	// CodeMethodNotFound indicates the method does not exist on the peer.
	CodeMethodNotFound = -32601
	// CodeInvalidParams indicates invalid method parameters.
	CodeInvalidParams = -32602
	// CodeInternal indicates an internal peer error.
	CodeInternal = -32603
)

// NewRequest builds a request message with the given id, method, and params.
// A nil params leaves the params field absent.
func NewRequest(id int64, method string, params any) (*Message, error) {
	m := &Message{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		m.Params = raw
	}
	return m, nil
}

// NewNotification builds a notification message (no id).
func NewNotification(method string, params any) (*Message, error) {
	m := &Message{
		JSONRPC: Version,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		m.Params = raw
	}
	return m, nil
}

// Decode parses one message body.
func Decode(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

// Kind classifies the message by presence of id, method, and result/error.
func (m *Message) Kind() Kind {
	switch {
	case m.ID != nil && m.Method != "":
		return KindRequest
	case m.ID != nil && (m.Result != nil || m.Error != nil):
		return KindResponse
	case m.ID == nil && m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}
