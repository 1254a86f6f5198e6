package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/internal/presentation/graph"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/orchestrator"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ChatResult is the structured result of the chat tool.
type ChatResult struct {
	SessionID    string              `json:"sessionId" jsonschema_description:"Session to pass on follow-up turns"`
	Response     string              `json:"response" jsonschema_description:"The assistant answer"`
	Orchestrated bool                `json:"orchestrated" jsonschema_description:"Whether travel tools were used"`
	ToolCalls    []domain.ToolResult `json:"toolCalls,omitempty" jsonschema_description:"Successful tool invocations"`
}

// StepPreview describes one planned tool call.
type StepPreview struct {
	ID        string   `json:"id"`
	Tool      string   `json:"tool"`
	DependsOn []string `json:"dependsOn,omitempty"`
	Optional  bool     `json:"optional,omitempty"`
}

// PlanPreview describes one plan.
type PlanPreview struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Steps       []StepPreview `json:"steps"`
}

// PreviewResult is the structured result of the plan_preview tool.
type PreviewResult struct {
	SessionID string          `json:"sessionId"`
	Intents   []domain.Intent `json:"intents" jsonschema_description:"Classified intents of the message"`
	Plans     []PlanPreview   `json:"plans" jsonschema_description:"Plans that would run"`
	Mermaid   string          `json:"mermaid,omitempty" jsonschema_description:"Mermaid flowchart of the planned steps"`
}

// Server exposes the orchestrator as an MCP server.
type Server struct {
	svc       *orchestrator.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithServerLogger configures a logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server for svc.
func NewServer(svc *orchestrator.Service, version string, opts ...ServerOption) *Server {
	s := &Server{
		svc:       svc,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("waypoint-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return ServeStreamable(ctx, s.mcpServer, addr, s.logger)
}

// ServeStreamable serves mcpServer on addr under /mcp until ctx is done.
func ServeStreamable(ctx context.Context, mcpServer *server.MCPServer, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", corsMiddleware(server.NewStreamableHTTPServer(mcpServer)))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("MCP server listening (streamable HTTP)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info("Shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: chat
	chatTool := mcp.NewTool("chat",
		mcp.WithDescription("Ask the travel assistant. Plans trips, checks departures, weather and snow, compares CO2 and looks up train formations."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("session_id", mcp.Description("Session of earlier turns (optional)")),
		mcp.WithString("language", mcp.Description("Answer language, e.g. en or de (optional)")),
		mcp.WithOutputSchema[ChatResult](),
	)
	s.mcpServer.AddTool(chatTool, mcp.NewStructuredToolHandler(s.handleChat))

	// TOOL: plan_preview
	previewTool := mcp.NewTool("plan_preview",
		mcp.WithDescription("Show the intents and tool plans a message would produce, without running them."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("session_id", mcp.Description("Session of earlier turns (optional)")),
		mcp.WithOutputSchema[PreviewResult](),
	)
	s.mcpServer.AddTool(previewTool, mcp.NewStructuredToolHandler(s.handlePreview))

	// TOOL: session_context
	s.mcpServer.AddTool(mcp.NewTool("session_context",
		mcp.WithDescription("Get the conversation context of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("session_id", "")
		c, err := s.svc.Sessions().Snapshot(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session %q: %v", id, err)), nil
		}
		jsonBytes, _ := json.Marshal(c)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (s *Server) handleChat(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (ChatResult, error) {
	resp, err := s.svc.Chat(ctx, orchestrator.Request{
		Message:   stringArg(args, "message"),
		SessionID: stringArg(args, "session_id"),
		Language:  stringArg(args, "language"),
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat failed: %w", err)
	}
	return ChatResult{
		SessionID:    resp.SessionID,
		Response:     resp.Response,
		Orchestrated: resp.Orchestrated,
		ToolCalls:    resp.ToolCalls,
	}, nil
}

func (s *Server) handlePreview(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (PreviewResult, error) {
	req := orchestrator.Request{
		Message:   stringArg(args, "message"),
		SessionID: stringArg(args, "session_id"),
	}
	if req.SessionID == "" {
		req.SessionID = "preview"
	}
	plans, intents, err := s.svc.Preview(ctx, req)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("preview failed: %w", err)
	}

	out := PreviewResult{SessionID: req.SessionID, Intents: intents, Plans: make([]PlanPreview, 0, len(plans))}
	for _, p := range plans {
		pp := PlanPreview{ID: p.ID, Name: p.Name, Description: p.Description}
		for _, step := range p.Steps {
			pp.Steps = append(pp.Steps, StepPreview{
				ID:        step.ID,
				Tool:      step.ToolName,
				DependsOn: step.DependsOn,
				Optional:  step.Optional,
			})
		}
		out.Plans = append(out.Plans, pp)
	}
	if len(plans) > 0 {
		out.Mermaid = graph.GenerateMermaid(plans, nil)
	}
	return out, nil
}

func (s *Server) registerResources() {
	// RESOURCE: sessions
	s.mcpServer.AddResource(mcp.NewResource("waypoint://sessions", "Active Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.svc.Sessions().List())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "waypoint://sessions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
