// Package protocol implements the JSON-RPC 2.0 codec for the Agent Client
// Protocol (ACP). It serializes outbound requests, notifications, and
// responses, and classifies inbound wire messages without ever failing:
// malformed input is reported as a classification, not an error.
package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Version is the JSON-RPC protocol version ACP speaks.
const Version = "2.0"

// MessageType classifies an inbound JSON-RPC 2.0 message.
type MessageType int

const (
	// TypeRequest has both an id and a method; the sender expects a response.
	TypeRequest MessageType = iota
	// TypeNotification has a method but no id; no response is expected.
	TypeNotification
	// TypeResponse has an id and a result.
	TypeResponse
	// TypeError has an id and an error object.
	TypeError
	// TypeParseError indicates the raw bytes were not valid JSON.
	TypeParseError
	// TypeInvalid indicates valid JSON that is not a JSON-RPC 2.0 message.
	TypeInvalid
)

// String returns a human-readable name for the message type.
func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeNotification:
		return "notification"
	case TypeResponse:
		return "response"
	case TypeError:
		return "error"
	case TypeParseError:
		return "parse_error"
	case TypeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ErrorObject is a JSON-RPC 2.0 error object.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is the result of classifying one inbound wire message.
// Which fields are populated depends on Type:
//
//	TypeRequest:      ID, Method, Params
//	TypeNotification: Method, Params
//	TypeResponse:     ID, Result
//	TypeError:        ID, Err
//	TypeParseError:   Desc
//	TypeInvalid:      Desc
type Message struct {
	Type   MessageType
	ID     json.RawMessage // raw id, echoed back verbatim in responses
	Method string
	Params map[string]any
	Result json.RawMessage
	Err    *ErrorObject
	Desc   string // description for parse errors and invalid messages
}

// IntID returns the message id as an integer, if it is one.
// Client-issued request ids are always integers; agent-issued ids may not be.
func (m *Message) IntID() (int64, bool) {
	if len(m.ID) == 0 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

// Codec creates and classifies JSON-RPC 2.0 messages. Request ids are assigned
// from a monotonic counter starting at 1 and are never reused.
type Codec struct {
	mu     sync.Mutex
	nextID int64
}

// NewCodec returns a Codec with its id counter at zero (first id issued is 1).
func NewCodec() *Codec {
	return &Codec{}
}

// wireRequest is the outbound request/notification shape.
type wireRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      *int64         `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

// CreateRequest assigns the next request id and serializes a request.
// Returns the id (for response correlation) and the wire bytes, without a
// trailing newline.
func (c *Codec) CreateRequest(method string, params map[string]any) (int64, []byte, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(wireRequest{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request %q: %w", method, err)
	}
	return id, data, nil
}

// CreateNotification serializes a notification (no id, no response expected).
func (c *Codec) CreateNotification(method string, params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(wireRequest{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification %q: %w", method, err)
	}
	return data, nil
}

// CreateResponse serializes a success response for the given request id.
// The id is echoed back as-is, so agent-issued string ids survive the round trip.
func (c *Codec) CreateResponse(id json.RawMessage, result any) ([]byte, error) {
	data, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
	}{Version, id, result})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return data, nil
}

// CreateErrorResponse serializes an error response for the given request id.
// data may be nil; it is omitted from the wire when absent.
func (c *Codec) CreateErrorResponse(id json.RawMessage, code int, message string, data any) ([]byte, error) {
	out, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   ErrorObject     `json:"error"`
	}{Version, id, ErrorObject{Code: code, Message: message, Data: data}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error response: %w", err)
	}
	return out, nil
}

// rawMessage mirrors the inbound wire shape. Pointer fields distinguish
// "absent" from "null" during classification.
type rawMessage struct {
	JSONRPC *string          `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Method  *string          `json:"method"`
	Params  map[string]any   `json:"params"`
	Result  *json.RawMessage `json:"result"`
	Error   *ErrorObject     `json:"error"`
}

// ParseMessage classifies one inbound wire message. It never returns an error:
// malformed JSON yields TypeParseError, a wrong or missing jsonrpc version
// yields TypeInvalid, and a structurally ambiguous message yields TypeInvalid.
func (c *Codec) ParseMessage(raw []byte) Message {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{
			Type: TypeParseError,
			Desc: fmt.Sprintf("JSON parse error: %v", err),
		}
	}

	if msg.JSONRPC == nil || *msg.JSONRPC != Version {
		got := "<missing>"
		if msg.JSONRPC != nil {
			got = *msg.JSONRPC
		}
		return Message{
			Type: TypeInvalid,
			Desc: fmt.Sprintf("invalid jsonrpc field: expected %q, got %q", Version, got),
		}
	}

	hasID := len(msg.ID) > 0 && string(msg.ID) != "null"
	hasMethod := msg.Method != nil

	switch {
	case msg.Error != nil && hasID:
		return Message{Type: TypeError, ID: msg.ID, Err: msg.Error}
	case msg.Result != nil && hasID:
		return Message{Type: TypeResponse, ID: msg.ID, Result: *msg.Result}
	case hasMethod && hasID:
		params := msg.Params
		if params == nil {
			params = map[string]any{}
		}
		return Message{Type: TypeRequest, ID: msg.ID, Method: *msg.Method, Params: params}
	case hasMethod:
		params := msg.Params
		if params == nil {
			params = map[string]any{}
		}
		return Message{Type: TypeNotification, Method: *msg.Method, Params: params}
	default:
		return Message{Type: TypeInvalid, Desc: "invalid JSON-RPC message structure"}
	}
}
