package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"themis-assess/internal/auth"
	"themis-assess/internal/services"
	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

// Server exposes guided assessments as MCP tools.
type Server struct {
	mcpServer   *server.MCPServer
	assessments services.AssessmentService
}

func NewServer(assessments services.AssessmentService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Themis Assessments",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		assessments: assessments,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	projectArg := mcp.WithString("project_id", mcp.Required(), mcp.Description("UUID of the audit project"))
	controlArg := mcp.WithString("control_id", mcp.Required(), mcp.Description("UUID of the framework control"))

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_assessment",
			mcp.WithDescription("Show the current question, the answers given so far and any finding for a control's assessment"),
			projectArg,
			controlArg,
		),
		s.handleGetAssessment,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"answer_question",
			mcp.WithDescription("Answer a question of a control's assessment and return the next screen"),
			projectArg,
			controlArg,
			mcp.WithString("node_id", mcp.Required(), mcp.Description("The question being answered")),
			mcp.WithString("answer", mcp.Description("Value for select and free-form questions")),
			mcp.WithObject("fields", mcp.Description("Field values for group questions")),
		),
		s.handleAnswerQuestion,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"reset_assessment",
			mcp.WithDescription("Discard every answer of a control's assessment"),
			projectArg,
			controlArg,
		),
		s.handleResetAssessment,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_assessments",
			mcp.WithDescription("List the assessments of a project"),
			projectArg,
			mcp.WithString("status", mcp.Description("Only assessments in this status"),
				mcp.Enum(string(models.ExecutionNotStarted), string(models.ExecutionInProgress), string(models.ExecutionCompleted))),
		),
		s.handleListAssessments,
	)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, mcp.NewToolResultError("Invalid arguments type")
	}
	return args, nil
}

func uuidArg(args map[string]interface{}, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, ok := args[name].(string)
	if !ok || raw == "" {
		return uuid.Nil, mcp.NewToolResultError("Missing required parameter: " + name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(fmt.Sprintf("Invalid %s: %v", name, err))
	}
	return id, nil
}

func executionKey(ctx context.Context, args map[string]interface{}) (models.ExecutionKey, *mcp.CallToolResult) {
	tenantID, ok := auth.TenantID(ctx)
	if !ok {
		return models.ExecutionKey{}, mcp.NewToolResultError("Unauthenticated: no tenant for this session")
	}
	projectID, res := uuidArg(args, "project_id")
	if res != nil {
		return models.ExecutionKey{}, res
	}
	controlID, res := uuidArg(args, "control_id")
	if res != nil {
		return models.ExecutionKey{}, res
	}
	return models.ExecutionKey{TenantID: tenantID, ProjectID: projectID, ControlID: controlID}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetAssessment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, res := arguments(request)
	if res != nil {
		return res, nil
	}
	key, res := executionKey(ctx, args)
	if res != nil {
		return res, nil
	}

	view, err := s.assessments.View(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load assessment: %v", err)), nil
	}
	return jsonResult(view)
}

func (s *Server) handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, res := arguments(request)
	if res != nil {
		return res, nil
	}
	key, res := executionKey(ctx, args)
	if res != nil {
		return res, nil
	}
	nodeID, ok := args["node_id"].(string)
	if !ok || nodeID == "" {
		return mcp.NewToolResultError("Missing required parameter: node_id"), nil
	}

	var answer workflow.Answer
	if raw, ok := args["fields"].(map[string]interface{}); ok {
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			fields[k] = fmt.Sprint(v)
		}
		answer = workflow.Group(fields)
	} else if v, ok := args["answer"]; ok && v != nil {
		answer = workflow.Scalar(fmt.Sprint(v))
	} else {
		return mcp.NewToolResultError("Provide either answer or fields"), nil
	}

	if _, err := s.assessments.SubmitAnswer(ctx, key, nodeID, answer); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to record answer: %v", err)), nil
	}
	view, err := s.assessments.View(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load assessment: %v", err)), nil
	}
	return jsonResult(view)
}

func (s *Server) handleResetAssessment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, res := arguments(request)
	if res != nil {
		return res, nil
	}
	key, res := executionKey(ctx, args)
	if res != nil {
		return res, nil
	}

	exec, err := s.assessments.Reset(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reset assessment: %v", err)), nil
	}
	return jsonResult(exec)
}

func (s *Server) handleListAssessments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, res := arguments(request)
	if res != nil {
		return res, nil
	}
	tenantID, ok := auth.TenantID(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated: no tenant for this session"), nil
	}
	projectID, res := uuidArg(args, "project_id")
	if res != nil {
		return res, nil
	}

	filter := models.ExecutionFilter{TenantID: tenantID, ProjectID: projectID}
	if raw, ok := args["status"].(string); ok && raw != "" {
		status := models.ExecutionStatus(raw)
		if !status.Valid() {
			return mcp.NewToolResultError("Unknown status: " + raw), nil
		}
		filter.Status = &status
	}

	execs, err := s.assessments.ListExecutions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list assessments: %v", err)), nil
	}
	if execs == nil {
		execs = []*models.WorkflowExecution{}
	}
	return jsonResult(execs)
}

// carryTenant copies the tenant resolved by the auth middleware into the
// context MCP tool handlers run with.
func carryTenant(ctx context.Context, r *http.Request) context.Context {
	if id, ok := auth.TenantID(r.Context()); ok {
		return auth.WithTenantID(ctx, id)
	}
	return ctx
}

// MountHTTPHandlers serves the MCP transports under g: streamable HTTP at the
// group root and the legacy SSE pair at /sse and /message. g must already
// resolve the tenant.
func MountHTTPHandlers(g *echo.Group, basePath string, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath(basePath),
		server.WithSSEContextFunc(carryTenant),
	)
	streamable := server.NewStreamableHTTPServer(mcpServer,
		server.WithHTTPContextFunc(carryTenant),
	)

	g.Any("", echo.WrapHandler(streamable))
	g.GET("/sse", echo.WrapHandler(http.HandlerFunc(sseServer.ServeHTTP)))
	g.POST("/message", echo.WrapHandler(http.HandlerFunc(sseServer.ServeHTTP)))
}
