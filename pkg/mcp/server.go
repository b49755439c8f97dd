// Package mcp exposes the device tool registry and cache/history
// introspection over the Model Context Protocol, speaking JSON-RPC 2.0
// line-by-line on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/droidpilot-ai/droidpilot/pkg/budget"
	"github.com/droidpilot-ai/droidpilot/pkg/device"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

// CacheStatter provides cache statistics without coupling to a concrete cache implementation.
type CacheStatter interface {
	Stats() (models.CacheStats, error)
}

// HistoryReader provides read access to recorded conversations.
type HistoryReader interface {
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	ConversationTurns(ctx context.Context, conversationID string) ([]models.Turn, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
// Device tools from the registry are exposed directly; cache, history, and
// budget introspection are exposed as built-in tools.
type Server struct {
	registry *tools.Registry
	device   *device.Device
	cache    CacheStatter
	history  HistoryReader
	enforcer *budget.Enforcer
	version  string
}

// New creates a new MCP Server. cache, history, and enforcer may be nil;
// the corresponding tools then report that they are not configured.
func New(registry *tools.Registry, dev *device.Device, cache CacheStatter, history HistoryReader, enforcer *budget.Enforcer, version string) *Server {
	return &Server{
		registry: registry,
		device:   dev,
		cache:    cache,
		history:  history,
		enforcer: enforcer,
		version:  version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			// notification — no response
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil // notification, no response
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: "2024-11-05",
			ServerInfo:      ServerInfo{Name: "droidpilot", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		},
	}
}

func (s *Server) handleToolsList(req *Request) *Response {
	defs := make([]ToolDefinition, 0, len(adminTools)+8)
	for _, spec := range s.registry.Specs() {
		defs = append(defs, ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	defs = append(defs, adminTools...)
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  ToolsListResult{Tools: defs},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}

	var result ToolCallResult
	if handler, ok := adminHandlers[params.Name]; ok {
		result = handler(ctx, s, params.Arguments)
	} else {
		result = s.callDeviceTool(ctx, params)
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

// callDeviceTool decodes the arguments and runs a registry tool against the
// connected device. Unknown tools come back as structured failures from the
// registry, which map to isError results here.
func (s *Server) callDeviceTool(ctx context.Context, params ToolCallParams) ToolCallResult {
	args := map[string]any{}
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
	}
	return toolCallResult(s.registry.Execute(ctx, s.device, params.Name, args))
}

func toolCallResult(res models.ToolResult) ToolCallResult {
	if !res.Success {
		return errorResult(res.Error)
	}
	text := res.Output
	if len(res.Data) > 0 {
		data, err := json.MarshalIndent(res.Data, "", "  ")
		if err == nil {
			if text != "" {
				text += "\n"
			}
			text += string(data)
		}
	}
	return textResult(text)
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("mcp: marshal error: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		log.Printf("mcp: write error: %v", err)
	}
}
