package protocol

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ACP-specific error codes.
const (
	CodePermissionDenied = -32001
	CodeFileNotFound     = -32002
	CodeFileAccessError  = -32003
	CodeTerminalError    = -32004
)
