package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"themis-assess/internal/auth"
	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

// AnswerRequest is the body of an answer submission.
type AnswerRequest struct {
	NodeID string           `json:"node_id" validate:"required"`
	Answer *workflow.Answer `json:"answer" validate:"required"`
}

func bindUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	return id, err
}

// executionKey resolves the tenant and the project/control path parameters.
// ok is false when a problem response has already been written.
func (s *Server) executionKey(c echo.Context) (key models.ExecutionKey, ok bool, err error) {
	tenantID, found := auth.TenantID(c.Request().Context())
	if !found {
		return key, false, unauthorized(c)
	}
	projectID, perr := bindUUIDParam(c, "projectId")
	if perr != nil {
		return key, false, writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter projectId: "+perr.Error())
	}
	controlID, perr := bindUUIDParam(c, "controlId")
	if perr != nil {
		return key, false, writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter controlId: "+perr.Error())
	}
	return models.ExecutionKey{TenantID: tenantID, ProjectID: projectID, ControlID: controlID}, true, nil
}

// GetAssessment returns the current screen of a control's assessment,
// starting it if needed
// (GET /api/v1/projects/{projectId}/controls/{controlId}/assessment)
func (s *Server) GetAssessment(c echo.Context) error {
	key, ok, err := s.executionKey(c)
	if !ok {
		return err
	}
	view, err := s.Assessments.View(c.Request().Context(), key)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// SubmitAnswer records an answer and returns the next screen
// (POST /api/v1/projects/{projectId}/controls/{controlId}/assessment/answers)
func (s *Server) SubmitAnswer(c echo.Context) error {
	key, ok, err := s.executionKey(c)
	if !ok {
		return err
	}
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", err.Error())
	}

	ctx := c.Request().Context()
	if _, err := s.Assessments.SubmitAnswer(ctx, key, req.NodeID, *req.Answer); err != nil {
		return s.writeError(c, err)
	}
	view, err := s.Assessments.View(ctx, key)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ResetAssessment discards every answer of a control's assessment
// (POST /api/v1/projects/{projectId}/controls/{controlId}/assessment/reset)
func (s *Server) ResetAssessment(c echo.Context) error {
	key, ok, err := s.executionKey(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.Assessments.Reset(ctx, key); err != nil {
		return s.writeError(c, err)
	}
	view, err := s.Assessments.View(ctx, key)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ListAssessments lists a project's assessments, optionally by status
// (GET /api/v1/projects/{projectId}/assessments)
func (s *Server) ListAssessments(c echo.Context) error {
	tenantID, ok := auth.TenantID(c.Request().Context())
	if !ok {
		return unauthorized(c)
	}
	projectID, err := bindUUIDParam(c, "projectId")
	if err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter projectId: "+err.Error())
	}
	var status *string
	if err := runtime.BindQueryParameter("form", true, false, "status", c.QueryParams(), &status); err != nil {
		return writeProblem(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter status: "+err.Error())
	}

	filter := models.ExecutionFilter{TenantID: tenantID, ProjectID: projectID}
	if status != nil {
		st := models.ExecutionStatus(*status)
		if !st.Valid() {
			return writeProblem(c, http.StatusBadRequest, "Bad Request", "unknown status "+*status)
		}
		filter.Status = &st
	}

	execs, err := s.Assessments.ListExecutions(c.Request().Context(), filter)
	if err != nil {
		return s.writeError(c, err)
	}
	if execs == nil {
		execs = []*models.WorkflowExecution{}
	}
	return c.JSON(http.StatusOK, execs)
}
