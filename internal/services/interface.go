package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

var (
	// ErrInvalidDefinition wraps the problems found when validating a definition.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	// ErrUnknownNode is returned when an answer targets a node the definition lacks.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNodeNotReachable is returned when an answer targets a node that is
	// neither the current node nor on the path already taken.
	ErrNodeNotReachable = errors.New("node is not reachable with the recorded answers")
	// ErrExecutionCompleted is returned when answering a completed assessment.
	ErrExecutionCompleted = errors.New("assessment already completed; reset it first")
)

// AssessmentService drives guided assessments. It is consumed by the HTTP and
// MCP layers.
type AssessmentService interface {
	View(ctx context.Context, key models.ExecutionKey) (*models.AssessmentView, error)
	SubmitAnswer(ctx context.Context, key models.ExecutionKey, nodeID string, answer workflow.Answer) (*models.WorkflowExecution, error)
	Reset(ctx context.Context, key models.ExecutionKey) (*models.WorkflowExecution, error)
	ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error)
}

// DefinitionService reads and writes the workflow bound to a control.
type DefinitionService interface {
	Get(ctx context.Context, tenantID string, controlID uuid.UUID) (*workflow.Definition, error)
	Put(ctx context.Context, tenantID string, controlID uuid.UUID, def *workflow.Definition) error
}
