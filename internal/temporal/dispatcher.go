package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"correction-workflow/internal/domain"
)

// WorkflowStarter is the slice of client.Client the dispatcher needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Dispatcher starts one StageNotificationWorkflow per stage event. The
// workflow id is derived from the event id, so a repeated publish of the same
// event is absorbed by Temporal.
type Dispatcher struct {
	starter   WorkflowStarter
	taskQueue string
	prefix    string
	logger    *zap.Logger
}

func NewDispatcher(starter WorkflowStarter, taskQueue, prefix string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{starter: starter, taskQueue: taskQueue, prefix: prefix, logger: logger}
}

func (d *Dispatcher) WorkflowID(event domain.StageEvent) string {
	return d.prefix + event.ID
}

func (d *Dispatcher) Publish(ctx context.Context, event domain.StageEvent) error {
	workflowID := d.WorkflowID(event)
	run, err := d.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: d.taskQueue,
	}, StageNotificationWorkflowName, event)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			d.logger.Info("notification workflow already started", zap.String("workflow_id", workflowID))
			return nil
		}
		return fmt.Errorf("start notification workflow %s: %w", workflowID, err)
	}

	d.logger.Info("notification workflow started",
		zap.String("workflow_id", workflowID),
		zap.String("run_id", run.GetRunID()),
		zap.String("document_id", event.DocumentID),
		zap.String("kind", string(event.Kind)),
		zap.Int("recipients", len(event.Recipients)),
	)
	return nil
}
