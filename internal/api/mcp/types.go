// Package mcp implements the Model Context Protocol (MCP) server for Engram.
// It exposes JSON-RPC 2.0 based tools for adding, searching, listing, and
// deleting memories, and for reading their audit history.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/scrypster/engram/pkg/types"
)

// AddMemoriesArgs contains arguments for the add_memories tool.
type AddMemoriesArgs struct {
	OwnerID  string          `json:"owner_id"` // Owner of the memories (required)
	Messages []types.Message `json:"messages"` // Conversation to distill facts from (required)
}

// UnmarshalJSON handles the case where some MCP clients send the "messages"
// field as a JSON-encoded string rather than a proper array. Both forms are
// accepted.
func (a *AddMemoriesArgs) UnmarshalJSON(data []byte) error {
	type Alias AddMemoriesArgs
	aux := &struct {
		Messages json.RawMessage `json:"messages"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Messages == nil {
		return nil
	}
	var messages []types.Message
	if err := json.Unmarshal(aux.Messages, &messages); err == nil {
		a.Messages = messages
		return nil
	}
	// Fall back: client sent the array as a JSON-encoded string.
	var s string
	if err := json.Unmarshal(aux.Messages, &s); err != nil {
		return nil // ignore unrecognised message formats rather than failing
	}
	if s = strings.TrimSpace(s); strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &messages)
		a.Messages = messages
	}
	return nil
}

// AppliedAction is one reconciliation outcome in an add_memories result.
type AppliedAction struct {
	ID    string `json:"id"`    // Memory ID the action applied to
	Text  string `json:"text"`  // Memory text after the action
	Event string `json:"event"` // ADD, UPDATE, DELETE, or NONE
}

// AddMemoriesResult contains the result of ingesting a conversation.
type AddMemoriesResult struct {
	Actions []AppliedAction `json:"actions"` // Ordered list of applied actions
	Added   int             `json:"added"`   // Count of ADD actions
	Updated int             `json:"updated"` // Count of UPDATE actions
	Deleted int             `json:"deleted"` // Count of DELETE actions
}

// SearchMemoryArgs contains arguments for the search_memory tool.
type SearchMemoryArgs struct {
	OwnerID     string `json:"owner_id"`               // Owner to search within (required)
	Query       string `json:"query"`                  // Natural-language query (required)
	Limit       int    `json:"limit,omitempty"`        // Max results (default from config)
	TokenBudget int    `json:"token_budget,omitempty"` // Greedy token cap on the result set
}

// MemoryPayload is the wire form of a memory in tool results.
type MemoryPayload struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	OwnerID   string  `json:"owner_id"`
	CreatedAt string  `json:"created_at"`           // RFC-3339
	UpdatedAt string  `json:"updated_at,omitempty"` // RFC-3339, set after updates
	Score     float64 `json:"score,omitempty"`      // Similarity, search results only
}

// SearchMemoryResult contains the ranked search results.
type SearchMemoryResult struct {
	Memories []MemoryPayload `json:"memories"`
	Total    int             `json:"total"`
}

// ListMemoriesArgs contains arguments for the list_memories tool.
type ListMemoriesArgs struct {
	OwnerID string `json:"owner_id"` // Owner to list (required)
}

// ListMemoriesResult contains all memories for an owner, newest first.
type ListMemoriesResult struct {
	Memories []MemoryPayload `json:"memories"`
	Total    int             `json:"total"`
}

// DeleteMemoryArgs contains arguments for the delete_memory tool.
type DeleteMemoryArgs struct {
	OwnerID string `json:"owner_id"` // Owner of the memory (required)
	ID      string `json:"id"`       // Memory ID to delete (required)
}

// DeleteMemoryResult contains the result of deleting a memory.
type DeleteMemoryResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// MemoryHistoryArgs contains arguments for the memory_history tool.
// Exactly one of ID or OwnerID should be set; ID takes priority.
type MemoryHistoryArgs struct {
	ID      string `json:"id,omitempty"`       // Memory ID to audit
	OwnerID string `json:"owner_id,omitempty"` // Owner whose full history to return
}

// HistoryPayload is the wire form of one audit row.
type HistoryPayload struct {
	ID        string  `json:"id"`
	MemoryID  string  `json:"memory_id"`
	OwnerID   string  `json:"owner_id"`
	PrevValue *string `json:"prev_value"`
	NewValue  *string `json:"new_value"`
	Event     string  `json:"event"`
	Timestamp string  `json:"timestamp"` // RFC-3339
}

// MemoryHistoryResult contains the audit rows, newest first.
type MemoryHistoryResult struct {
	Entries []HistoryPayload `json:"entries"`
	Total   int              `json:"total"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
