package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"themis-assess/internal/logging"
	"themis-assess/internal/repository"
	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

const (
	defaultWriteAttempts = 5
	defaultRetryBase     = 10 * time.Millisecond
)

// ExecutionManager owns the read-modify-write cycle of workflow executions.
// Writes for one key are serialized in-process; writes from other processes
// are detected through the record version and retried.
type ExecutionManager struct {
	store       repository.ExecutionStore
	definitions DefinitionService
	locks       *keyLock[models.ExecutionKey]
	metrics     *Metrics
	logger      *logging.Logger
	now         func() time.Time
	attempts    uint64
	retryBase   time.Duration
}

// NewExecutionManager creates an ExecutionManager. metrics may be nil.
func NewExecutionManager(store repository.ExecutionStore, definitions DefinitionService, metrics *Metrics, logger *logging.Logger) *ExecutionManager {
	return &ExecutionManager{
		store:       store,
		definitions: definitions,
		locks:       newKeyLock[models.ExecutionKey](),
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		attempts:    defaultWriteAttempts,
		retryBase:   defaultRetryBase,
	}
}

// GetOrCreate returns the execution for key, creating it in the not started
// state when absent. Concurrent callers converge on the same record.
func (m *ExecutionManager) GetOrCreate(ctx context.Context, key models.ExecutionKey) (*models.WorkflowExecution, error) {
	exec, err := m.store.GetExecution(ctx, key)
	if err == nil {
		return exec, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	exec, err = m.store.CreateExecution(ctx, models.NewWorkflowExecution(key, m.now()))
	if err != nil {
		return nil, err
	}
	m.logger.Debug("workflow execution created", "tenant_id", key.TenantID, "project_id", key.ProjectID, "control_id", key.ControlID)
	return exec, nil
}

// mutate applies fn to the freshest copy of the execution and writes it back,
// retrying when another writer got there first.
func (m *ExecutionManager) mutate(ctx context.Context, key models.ExecutionKey, fn func(*models.WorkflowExecution) error) (*models.WorkflowExecution, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	var result *models.WorkflowExecution
	backoff := retry.WithMaxRetries(m.attempts-1, retry.NewExponential(m.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		exec, err := m.GetOrCreate(ctx, key)
		if err != nil {
			return err
		}
		expected := exec.Version
		if err := fn(exec); err != nil {
			return err
		}
		if err := m.store.UpdateExecution(ctx, exec, expected); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				m.metrics.record(ctx, eventWriteConflict, key.TenantID)
				m.logger.Warn("workflow execution write conflict", "tenant_id", key.TenantID,
					"project_id", key.ProjectID, "control_id", key.ControlID, "version", expected)
				return retry.RetryableError(err)
			}
			return err
		}
		result = exec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertAnswer merges {nodeID: answer} into the recorded answers and stores
// nextNodeID, status and finding exactly as given.
func (m *ExecutionManager) UpsertAnswer(
	ctx context.Context,
	key models.ExecutionKey,
	nodeID string,
	answer workflow.Answer,
	nextNodeID *string,
	status models.ExecutionStatus,
	finding *string,
) (*models.WorkflowExecution, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown execution status %q", status)
	}
	exec, err := m.mutate(ctx, key, func(exec *models.WorkflowExecution) error {
		recordAnswer(exec, nodeID, answer)
		exec.CurrentNodeID = nextNodeID
		exec.Status = status
		exec.GeneratedFinding = finding
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.record(ctx, eventAnswer, key.TenantID)
	return exec, nil
}

// Reset clears every answer and returns the execution to not started.
func (m *ExecutionManager) Reset(ctx context.Context, key models.ExecutionKey) (*models.WorkflowExecution, error) {
	exec, err := m.mutate(ctx, key, func(exec *models.WorkflowExecution) error {
		exec.Answers = workflow.Answers{}
		exec.CurrentNodeID = nil
		exec.Status = models.ExecutionNotStarted
		exec.GeneratedFinding = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.record(ctx, eventReset, key.TenantID)
	m.logger.Info("workflow execution reset", "tenant_id", key.TenantID, "project_id", key.ProjectID, "control_id", key.ControlID)
	return exec, nil
}

// SubmitAnswer records answer for nodeID and derives the current node, status
// and finding from the control's definition.
func (m *ExecutionManager) SubmitAnswer(ctx context.Context, key models.ExecutionKey, nodeID string, answer workflow.Answer) (*models.WorkflowExecution, error) {
	def, err := m.definitions.Get(ctx, key.TenantID, key.ControlID)
	if err != nil {
		return nil, err
	}
	n, ok := workflow.GetNode(def, nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	if err := workflow.CheckAnswer(n, answer); err != nil {
		return nil, err
	}

	exec, err := m.mutate(ctx, key, func(exec *models.WorkflowExecution) error {
		if exec.Status == models.ExecutionCompleted {
			return ErrExecutionCompleted
		}
		if !reachable(def, exec.Answers, nodeID) {
			return fmt.Errorf("%w: %q", ErrNodeNotReachable, nodeID)
		}
		recordAnswer(exec, nodeID, answer)
		current := workflow.GetCurrentNodeID(def, exec.Answers)
		exec.CurrentNodeID = &current
		exec.GeneratedFinding = nil

		cn, _ := workflow.GetNode(def, current)
		if finding, ok := workflow.GetTerminalFinding(cn); ok {
			text := workflow.FormatFinding(finding)
			exec.Status = models.ExecutionCompleted
			exec.GeneratedFinding = &text
		} else if current != def.RootNodeID {
			exec.Status = models.ExecutionInProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.record(ctx, eventAnswer, key.TenantID)
	if exec.Status == models.ExecutionCompleted {
		m.metrics.record(ctx, eventCompletion, key.TenantID)
		m.logger.Info("assessment completed", "tenant_id", key.TenantID, "project_id", key.ProjectID,
			"control_id", key.ControlID, "node_id", *exec.CurrentNodeID)
	}
	return exec, nil
}

// View returns the execution together with what is needed to render it.
func (m *ExecutionManager) View(ctx context.Context, key models.ExecutionKey) (*models.AssessmentView, error) {
	def, err := m.definitions.Get(ctx, key.TenantID, key.ControlID)
	if err != nil {
		return nil, err
	}
	exec, err := m.GetOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}
	return &models.AssessmentView{
		Execution:   exec,
		CurrentNode: nodeView(def, workflow.GetCurrentNodeID(def, exec.Answers), exec.Answers),
		Breadcrumbs: workflow.BuildBreadcrumbTrail(def, exec.Answers),
	}, nil
}

// ListExecutions lists the executions of a project.
func (m *ExecutionManager) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	return m.store.ListExecutions(ctx, filter)
}

func recordAnswer(exec *models.WorkflowExecution, nodeID string, answer workflow.Answer) {
	if exec.Answers == nil {
		exec.Answers = workflow.Answers{}
	}
	exec.Answers[nodeID] = answer
}

// reachable reports whether nodeID is the current node or already on the trail.
func reachable(def *workflow.Definition, answers workflow.Answers, nodeID string) bool {
	if workflow.GetCurrentNodeID(def, answers) == nodeID {
		return true
	}
	for _, b := range workflow.BuildBreadcrumbTrail(def, answers) {
		if b.NodeID == nodeID {
			return true
		}
	}
	return false
}

func nodeView(def *workflow.Definition, id string, answers workflow.Answers) *models.NodeView {
	n, ok := workflow.GetNode(def, id)
	if !ok {
		return nil
	}
	view := &models.NodeView{ID: id}
	if f, ok := workflow.GetTerminalFinding(n); ok {
		view.Terminal = true
		view.Finding = &f
		return view
	}
	q := n.(workflow.Question)
	view.Prompt = q.Prompt()
	view.InputType = q.InputType()
	if a, ok := answers[id]; ok {
		view.Answer = &a
	}
	switch q := q.(type) {
	case *workflow.SelectNode:
		view.Options = optionViews(q.Options)
	case *workflow.GroupNode:
		for _, f := range q.Fields {
			view.Fields = append(view.Fields, models.FieldView{
				Name:      f.Name,
				Label:     f.Label,
				InputType: f.InputType,
				Options:   optionViews(f.Options),
			})
		}
	}
	return view
}

func optionViews(opts []workflow.Option) []models.OptionView {
	if len(opts) == 0 {
		return nil
	}
	out := make([]models.OptionView, 0, len(opts))
	for _, o := range opts {
		out = append(out, models.OptionView{Value: o.Value, Label: o.Label})
	}
	return out
}
