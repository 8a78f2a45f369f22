package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/datafed/types"
)

// defaultToolTimeout bounds one tool invocation end to end, covering the
// full backend fan-out.
const defaultToolTimeout = 30 * time.Second

// ToolHandler executes one tool call with already-decoded raw arguments.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Server dispatches JSON-RPC 2.0 messages to registered tools.
type Server struct {
	info ServerInfo

	mu       sync.RWMutex
	tools    map[string]*ToolDefinition
	handlers map[string]ToolHandler

	logger      *zap.Logger
	toolTimeout time.Duration
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = logger.With(zap.String("component", "mcp")) }
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.toolTimeout = d
		}
	}
}

// NewServer creates an MCP server advertising tool support.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info: ServerInfo{
			Name:            name,
			Version:         version,
			ProtocolVersion: ProtocolVersion,
			Capabilities: ServerCapabilities{
				Tools:   true,
				Logging: true,
			},
		},
		tools:       make(map[string]*ToolDefinition),
		handlers:    make(map[string]ToolHandler),
		logger:      zap.NewNop(),
		toolTimeout: defaultToolTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Info returns the handshake server info.
func (s *Server) Info() ServerInfo {
	return s.info
}

// RegisterTool adds a tool to the registry.
func (s *Server) RegisterTool(tool *ToolDefinition, handler ToolHandler) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.InputSchema == nil {
		return fmt.Errorf("tool %q: input schema is required", tool.Name)
	}
	if handler == nil {
		return fmt.Errorf("tool %q: handler is required", tool.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler

	s.logger.Info("tool registered", zap.String("name", tool.Name))
	return nil
}

// ListTools returns the registered tool definitions in name order.
func (s *Server) ListTools() []ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool invokes a registered tool with a bounded timeout.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	handler, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("unknown tool %q", name))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler(callCtx, args)
	if err != nil {
		s.logger.Warn("tool call failed",
			zap.String("tool", name),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("tool call succeeded",
		zap.String("tool", name),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}

// HandleMessage dispatches one JSON-RPC request and returns the response.
// Notifications (no ID) are processed without a response.
func (s *Server) HandleMessage(ctx context.Context, msg *Message) *Message {
	if msg == nil {
		return NewErrorResponse(nil, ErrorCodeInvalidRequest, "empty message", nil)
	}

	if msg.ID == nil {
		s.handleNotification(msg)
		return nil
	}

	switch msg.Method {
	case "initialize":
		return NewResponse(msg.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    s.info.Capabilities,
			"serverInfo": map[string]any{
				"name":    s.info.Name,
				"version": s.info.Version,
			},
		})

	case "ping":
		return NewResponse(msg.ID, map[string]any{})

	case "tools/list":
		return NewResponse(msg.ID, map[string]any{"tools": s.ListTools()})

	case "tools/call":
		return s.handleToolsCall(ctx, msg)

	default:
		return NewErrorResponse(msg.ID, ErrorCodeMethodNotFound,
			fmt.Sprintf("method not found: %s", msg.Method), nil)
	}
}

func (s *Server) handleNotification(msg *Message) {
	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("client initialized")
	default:
		s.logger.Debug("unhandled notification", zap.String("method", msg.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, msg *Message) *Message {
	name, _ := msg.Params["name"].(string)
	if name == "" {
		return NewErrorResponse(msg.ID, ErrorCodeInvalidParams, "missing required parameter: name", nil)
	}
	args, _ := msg.Params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		code, data := rpcErrorFor(err)
		return NewErrorResponse(msg.ID, code, err.Error(), data)
	}
	return NewResponse(msg.ID, result)
}

// rpcErrorFor maps a tool error to a JSON-RPC code, attaching the
// structured error code and any per-instance reasons as data.
func rpcErrorFor(err error) (int, any) {
	code := types.GetErrorCode(err)
	data := map[string]any{}
	if code != "" {
		data["code"] = string(code)
	}
	if reasons := types.ErrorReasons(err); len(reasons) > 0 {
		data["reasons"] = reasons
	}
	if len(data) == 0 {
		data = nil
	}

	switch code {
	case types.ErrInvalidRequest:
		return ErrorCodeInvalidParams, data
	case types.ErrNotFound:
		return ErrorCodeInvalidParams, data
	default:
		return ErrorCodeInternalError, data
	}
}

// Serve runs the message loop over the given transport until the context
// is cancelled or the transport fails permanently.
func (s *Server) Serve(ctx context.Context, transport Transport) error {
	if transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}

	s.logger.Info("mcp server starting",
		zap.String("name", s.info.Name),
		zap.String("version", s.info.Version),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mcp server stopping")
			return ctx.Err()
		default:
		}

		msg, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("mcp server stopping")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("mcp client disconnected")
				return nil
			}
			return fmt.Errorf("transport receive: %w", err)
		}

		if msg.JSONRPC != "" && msg.JSONRPC != "2.0" {
			resp := NewErrorResponse(msg.ID, ErrorCodeInvalidRequest, "unsupported JSON-RPC version", nil)
			if sendErr := transport.Send(ctx, resp); sendErr != nil {
				s.logger.Error("failed to send error response", zap.Error(sendErr))
			}
			continue
		}

		resp := s.HandleMessage(ctx, msg)
		if resp == nil {
			continue
		}
		if sendErr := transport.Send(ctx, resp); sendErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("failed to send response", zap.Error(sendErr))
		}
	}
}
