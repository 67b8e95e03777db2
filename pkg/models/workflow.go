// Package models defines the persisted records and API views of the assessment service
package models

import (
	"time"

	"github.com/google/uuid"

	"themis-assess/internal/workflow"
)

// ExecutionStatus is the lifecycle state of a guided assessment
type ExecutionStatus string

const (
	ExecutionNotStarted ExecutionStatus = "not_started"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
)

// Valid reports whether s is one of the known statuses
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionNotStarted, ExecutionInProgress, ExecutionCompleted:
		return true
	}
	return false
}

// ExecutionKey identifies the single execution of a control within a project.
// TenantID scopes every lookup; (ProjectID, ControlID) is unique.
type ExecutionKey struct {
	TenantID  string
	ProjectID uuid.UUID
	ControlID uuid.UUID
}

// WorkflowExecution tracks an auditor's progress through a control's decision tree
type WorkflowExecution struct {
	ID               uuid.UUID        `json:"id"`
	TenantID         string           `json:"tenant_id"`
	ProjectID        uuid.UUID        `json:"project_id"`
	ControlID        uuid.UUID        `json:"control_id"`
	Answers          workflow.Answers `json:"answers"`
	CurrentNodeID    *string          `json:"current_node_id"`
	Status           ExecutionStatus  `json:"status"`
	GeneratedFinding *string          `json:"generated_finding"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Key returns the lookup key of the execution
func (e *WorkflowExecution) Key() ExecutionKey {
	return ExecutionKey{TenantID: e.TenantID, ProjectID: e.ProjectID, ControlID: e.ControlID}
}

// NewWorkflowExecution returns an execution in its initial state
func NewWorkflowExecution(key ExecutionKey, now time.Time) *WorkflowExecution {
	return &WorkflowExecution{
		ID:        uuid.New(),
		TenantID:  key.TenantID,
		ProjectID: key.ProjectID,
		ControlID: key.ControlID,
		Answers:   workflow.Answers{},
		Status:    ExecutionNotStarted,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ControlWorkflow binds a workflow definition to a framework control
type ControlWorkflow struct {
	TenantID   string               `json:"tenant_id"`
	ControlID  uuid.UUID            `json:"control_id"`
	Definition *workflow.Definition `json:"definition"`
}

// ExecutionFilter narrows execution listings
type ExecutionFilter struct {
	TenantID  string
	ProjectID uuid.UUID
	Status    *ExecutionStatus
}

// OptionView is a select choice as shown to the auditor
type OptionView struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldView is one input of a group question
type FieldView struct {
	Name      string             `json:"name"`
	Label     string             `json:"label"`
	InputType workflow.InputType `json:"input_type"`
	Options   []OptionView       `json:"options,omitempty"`
}

// NodeView is the node the auditor is currently looking at
type NodeView struct {
	ID        string             `json:"id"`
	Terminal  bool               `json:"terminal"`
	Prompt    string             `json:"prompt,omitempty"`
	InputType workflow.InputType `json:"input_type,omitempty"`
	Options   []OptionView       `json:"options,omitempty"`
	Fields    []FieldView        `json:"fields,omitempty"`
	Answer    *workflow.Answer   `json:"answer,omitempty"`
	Finding   *workflow.Finding  `json:"finding,omitempty"`
}

// AssessmentView is everything needed to render one screen of the guided assessment
type AssessmentView struct {
	Execution   *WorkflowExecution    `json:"execution"`
	CurrentNode *NodeView             `json:"current_node,omitempty"`
	Breadcrumbs []workflow.Breadcrumb `json:"breadcrumbs"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
