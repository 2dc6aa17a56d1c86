package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// memoryPipeline is the subset of engine.Orchestrator used by the MCP server.
// Using an interface keeps the MCP package loosely coupled and testable.
type memoryPipeline interface {
	Add(ctx context.Context, ownerID string, messages []types.Message) ([]types.MemoryAction, error)
	Search(ctx context.Context, ownerID, query string, limit, tokenBudget int) ([]*types.Memory, error)
	GetAll(ctx context.Context, ownerID string) ([]*types.Memory, error)
	Delete(ctx context.Context, ownerID, memoryID string) error
	History(ctx context.Context, memoryID string) ([]*types.HistoryEntry, error)
	OwnerHistory(ctx context.Context, ownerID string) ([]*types.HistoryEntry, error)
}

// Server implements the Model Context Protocol (MCP) for Engram. It provides
// JSON-RPC 2.0 based tools for AI assistants to manage per-user long-term
// memory.
type Server struct {
	pipeline memoryPipeline
}

// NewServer creates a new MCP server instance over the memory pipeline.
func NewServer(pipeline memoryPipeline) *Server {
	return &Server{pipeline: pipeline}
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// This is the main entry point for MCP protocol handling.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err)
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	// Standard MCP protocol methods
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		// Notification. No response body required; return empty object.
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	// Native JSON-RPC methods (kept for direct callers)
	case "add_memories":
		result, err = s.handleAddMemories(ctx, req.Params)
	case "search_memory":
		result, err = s.handleSearchMemory(ctx, req.Params)
	case "list_memories":
		result, err = s.handleListMemories(ctx, req.Params)
	case "delete_memory":
		result, err = s.handleDeleteMemory(ctx, req.Params)
	case "memory_history":
		result, err = s.handleMemoryHistory(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			return s.errorResponse(req.ID, ErrCodeInvalidParams, err.Error(), nil)
		}
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}

	return s.successResponse(req.ID, result)
}

// AddMemories runs the ingestion pipeline over a conversation and reports
// the reconciliation outcome per extracted fact.
func (s *Server) AddMemories(ctx context.Context, args AddMemoriesArgs) (*AddMemoriesResult, error) {
	if args.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}
	if len(args.Messages) == 0 {
		return nil, fmt.Errorf("messages is required")
	}

	actions, err := s.pipeline.Add(ctx, args.OwnerID, args.Messages)
	if err != nil {
		return nil, err
	}

	result := &AddMemoriesResult{Actions: make([]AppliedAction, 0, len(actions))}
	for _, action := range actions {
		result.Actions = append(result.Actions, AppliedAction{
			ID:    action.ID,
			Text:  action.Text,
			Event: string(action.Event),
		})
		switch action.Event {
		case types.EventAdd:
			result.Added++
		case types.EventUpdate:
			result.Updated++
		case types.EventDelete:
			result.Deleted++
		}
	}
	return result, nil
}

// SearchMemory returns the owner's memories ranked by similarity to the query.
func (s *Server) SearchMemory(ctx context.Context, args SearchMemoryArgs) (*SearchMemoryResult, error) {
	if args.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}
	if args.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	memories, err := s.pipeline.Search(ctx, args.OwnerID, args.Query, args.Limit, args.TokenBudget)
	if err != nil {
		return nil, err
	}
	return &SearchMemoryResult{
		Memories: memoriesToPayloads(memories),
		Total:    len(memories),
	}, nil
}

// ListMemories returns every memory for an owner, newest first.
func (s *Server) ListMemories(ctx context.Context, args ListMemoriesArgs) (*ListMemoriesResult, error) {
	if args.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}

	memories, err := s.pipeline.GetAll(ctx, args.OwnerID)
	if err != nil {
		return nil, err
	}
	return &ListMemoriesResult{
		Memories: memoriesToPayloads(memories),
		Total:    len(memories),
	}, nil
}

// DeleteMemory removes one memory directly, bypassing reconciliation.
func (s *Server) DeleteMemory(ctx context.Context, args DeleteMemoryArgs) (*DeleteMemoryResult, error) {
	if args.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}
	if args.ID == "" {
		return nil, fmt.Errorf("id is required")
	}

	if err := s.pipeline.Delete(ctx, args.OwnerID, args.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &DeleteMemoryResult{ID: args.ID, Deleted: false}, nil
		}
		return nil, err
	}
	return &DeleteMemoryResult{ID: args.ID, Deleted: true}, nil
}

// MemoryHistory returns the audit rows for one memory or one owner, newest
// first. When both id and owner_id are provided, id wins.
func (s *Server) MemoryHistory(ctx context.Context, args MemoryHistoryArgs) (*MemoryHistoryResult, error) {
	var entries []*types.HistoryEntry
	var err error
	switch {
	case args.ID != "":
		entries, err = s.pipeline.History(ctx, args.ID)
	case args.OwnerID != "":
		entries, err = s.pipeline.OwnerHistory(ctx, args.OwnerID)
	default:
		return nil, fmt.Errorf("either id or owner_id is required")
	}
	if err != nil {
		return nil, err
	}

	result := &MemoryHistoryResult{Entries: make([]HistoryPayload, 0, len(entries)), Total: len(entries)}
	for _, entry := range entries {
		result.Entries = append(result.Entries, HistoryPayload{
			ID:        entry.ID,
			MemoryID:  entry.MemoryID,
			OwnerID:   entry.OwnerID,
			PrevValue: entry.PrevValue,
			NewValue:  entry.NewValue,
			Event:     string(entry.Event),
			Timestamp: entry.Timestamp.Format(time.RFC3339),
		})
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Native JSON-RPC handlers
// ---------------------------------------------------------------------------

func (s *Server) handleAddMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args AddMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.AddMemories(ctx, args)
}

func (s *Server) handleSearchMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args SearchMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.SearchMemory(ctx, args)
}

func (s *Server) handleListMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args ListMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ListMemories(ctx, args)
}

func (s *Server) handleDeleteMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.DeleteMemory(ctx, args)
}

func (s *Server) handleMemoryHistory(ctx context.Context, params interface{}) (interface{}, error) {
	var args MemoryHistoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.MemoryHistory(ctx, args)
}

// ---------------------------------------------------------------------------
// Standard MCP protocol handlers
// ---------------------------------------------------------------------------

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(_ context.Context, _ interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "engram",
			Version: "1.0.0",
		},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(_ context.Context, _ interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the appropriate handler
// and wraps the result in the MCP content envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	// Re-marshal arguments so they can flow through the same param decoding
	// path the native handlers use.
	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var rawParams interface{}
	if err := json.Unmarshal(argsJSON, &rawParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "add_memories":
		result, handlerErr = s.handleAddMemories(ctx, rawParams)
	case "search_memory":
		result, handlerErr = s.handleSearchMemory(ctx, rawParams)
	case "list_memories":
		result, handlerErr = s.handleListMemories(ctx, rawParams)
	case "delete_memory":
		result, handlerErr = s.handleDeleteMemory(ctx, rawParams)
	case "memory_history":
		result, handlerErr = s.handleMemoryHistory(ctx, rawParams)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

// buildToolsList returns the canonical list of MCP tool definitions.
func (s *Server) buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name: "add_memories",
			Description: "Distill user facts from a conversation and reconcile them against " +
				"existing memories. Novel facts are added, refinements update the old memory, " +
				"contradictions delete it, and already-known facts are left alone. Returns the " +
				"per-fact outcome.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"owner_id", "messages"},
				"properties": map[string]interface{}{
					"owner_id": map[string]interface{}{"type": "string", "description": "User the memories belong to (required)"},
					"messages": map[string]interface{}{
						"type":        "array",
						"description": "Conversation turns to distill facts from (required)",
						"items": map[string]interface{}{
							"type":     "object",
							"required": []string{"role", "content"},
							"properties": map[string]interface{}{
								"role":    map[string]interface{}{"type": "string", "description": "user, assistant, or system"},
								"content": map[string]interface{}{"type": "string", "description": "Message text"},
							},
						},
					},
				},
			},
		},
		{
			Name:        "search_memory",
			Description: "Semantic search over one user's memories. Returns results ranked by similarity, optionally trimmed to a token budget.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"owner_id", "query"},
				"properties": map[string]interface{}{
					"owner_id":     map[string]interface{}{"type": "string", "description": "User to search within (required)"},
					"query":        map[string]interface{}{"type": "string", "description": "Natural-language query (required)"},
					"limit":        map[string]interface{}{"type": "integer", "description": "Max results; defaults to the configured retrieval limit"},
					"token_budget": map[string]interface{}{"type": "integer", "description": "Drop ranked results once the estimated token total would exceed this"},
				},
			},
		},
		{
			Name:        "list_memories",
			Description: "List everything remembered about one user, newest first.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"owner_id"},
				"properties": map[string]interface{}{
					"owner_id": map[string]interface{}{"type": "string", "description": "User to list (required)"},
				},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Delete one memory by ID. The deletion is recorded in the audit history.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"owner_id", "id"},
				"properties": map[string]interface{}{
					"owner_id": map[string]interface{}{"type": "string", "description": "Owner of the memory (required)"},
					"id":       map[string]interface{}{"type": "string", "description": "Memory ID to delete (required)"},
				},
			},
		},
		{
			Name:        "memory_history",
			Description: "Audit trail for a memory (by id) or a whole user (by owner_id), newest first. History rows survive deletion of the memory itself.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":       map[string]interface{}{"type": "string", "description": "Memory ID to audit; takes priority over owner_id"},
					"owner_id": map[string]interface{}{"type": "string", "description": "Return the full history for this user"},
				},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// unmarshalParams converts the loosely-typed params value from JSON-RPC into
// a concrete args struct.
func (s *Server) unmarshalParams(params interface{}, target interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return json.Marshal(resp)
}

func (s *Server) errorResponse(id interface{}, code int, message string, err error) ([]byte, error) {
	rpcErr := &JSONRPCError{Code: code, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   rpcErr,
		ID:      id,
	}
	return json.Marshal(resp)
}

func memoriesToPayloads(memories []*types.Memory) []MemoryPayload {
	out := make([]MemoryPayload, 0, len(memories))
	for _, m := range memories {
		p := MemoryPayload{
			ID:        m.ID,
			Text:      m.Text,
			OwnerID:   m.OwnerID,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
			Score:     m.Score,
		}
		if m.UpdatedAt != nil {
			p.UpdatedAt = m.UpdatedAt.Format(time.RFC3339)
		}
		out = append(out, p)
	}
	return out
}
