// Package api contains the HTTP handlers for the assessment service
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"themis-assess/internal/logging"
	"themis-assess/internal/repository"
	"themis-assess/internal/services"
	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

const (
	serviceName    = "themis-assess"
	serviceVersion = "1.0.0"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the API server.
type Server struct {
	Assessments services.AssessmentService
	Definitions services.DefinitionService
	Store       Pinger
	Logger      *logging.Logger
}

// NewServer creates a new Server.
func NewServer(assessments services.AssessmentService, definitions services.DefinitionService, store Pinger, logger *logging.Logger) *Server {
	return &Server{Assessments: assessments, Definitions: definitions, Store: store, Logger: logger}
}

// RegisterHandlers mounts the authenticated API routes on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/projects/:projectId/assessments", s.ListAssessments)
	g.GET("/projects/:projectId/controls/:controlId/assessment", s.GetAssessment)
	g.POST("/projects/:projectId/controls/:controlId/assessment/answers", s.SubmitAnswer)
	g.POST("/projects/:projectId/controls/:controlId/assessment/reset", s.ResetAssessment)
	g.GET("/controls/:controlId/workflow", s.GetControlWorkflow)
	g.PUT("/controls/:controlId/workflow", s.PutControlWorkflow)
}

// HandleHealth reports service health, including store reachability
// (GET /health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: time.Now(),
		Checks:    map[string]string{"store": "ok"},
	}
	code := http.StatusOK
	if err := s.Store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
		status.Checks["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// RequestValidator adapts go-playground/validator to echo.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a RequestValidator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

// Validate implements echo.Validator.
func (v *RequestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// writeProblem writes an RFC 7807 Problem Details JSON error response
func writeProblem(c echo.Context, status int, title, detail string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, models.ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// writeError maps service and store errors onto problem responses.
func (s *Server) writeError(c echo.Context, err error) error {
	var storeErr *repository.StoreError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return writeProblem(c, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, workflow.ErrInvalidAnswer),
		errors.Is(err, services.ErrUnknownNode),
		errors.Is(err, services.ErrInvalidDefinition):
		return writeProblem(c, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	case errors.Is(err, services.ErrNodeNotReachable),
		errors.Is(err, services.ErrExecutionCompleted),
		errors.Is(err, repository.ErrVersionConflict):
		return writeProblem(c, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &storeErr):
		s.Logger.Error("store failure", "path", c.Request().URL.Path, "error", err)
		return writeProblem(c, http.StatusServiceUnavailable, "Service Unavailable", "the assessment store is unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeProblem(c, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	default:
		s.Logger.Error("request failed", "path", c.Request().URL.Path, "error", err)
		return writeProblem(c, http.StatusInternalServerError, "Internal Server Error", "unexpected error")
	}
}

func unauthorized(c echo.Context) error {
	return writeProblem(c, http.StatusUnauthorized, "Unauthorized", "tenant not resolved for request")
}
