package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"themis-assess/internal/auth"
	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

const maxDefinitionBytes = 1 << 20

// GetControlWorkflow returns the workflow bound to a control
// (GET /api/v1/controls/{controlId}/workflow)
func (s *Server) GetControlWorkflow(c echo.Context) error {
	tenantID, ok := auth.TenantID(c.Request().Context())
	if !ok {
		return unauthorized(c)
	}
	controlID, err := bindUUIDParam(c, "controlId")
	if err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter controlId: "+err.Error())
	}
	def, err := s.Definitions.Get(c.Request().Context(), tenantID, controlID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, models.ControlWorkflow{TenantID: tenantID, ControlID: controlID, Definition: def})
}

// PutControlWorkflow validates and binds a workflow to a control. The body is
// JSON, or YAML when the content type says so
// (PUT /api/v1/controls/{controlId}/workflow)
func (s *Server) PutControlWorkflow(c echo.Context) error {
	tenantID, ok := auth.TenantID(c.Request().Context())
	if !ok {
		return unauthorized(c)
	}
	controlID, err := bindUUIDParam(c, "controlId")
	if err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter controlId: "+err.Error())
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDefinitionBytes+1))
	if err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
	}
	if len(body) > maxDefinitionBytes {
		return writeProblem(c, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
			"Workflow definitions are limited to 1 MiB")
	}
	var def *workflow.Definition
	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "yaml") {
		def, err = workflow.ParseYAML(body)
	} else {
		def, err = workflow.ParseJSON(body)
	}
	if err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid workflow definition: "+err.Error())
	}

	if err := s.Definitions.Put(c.Request().Context(), tenantID, controlID, def); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, models.ControlWorkflow{TenantID: tenantID, ControlID: controlID, Definition: def})
}
