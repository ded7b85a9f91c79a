package temporal

import (
	"go.temporal.io/sdk/workflow"

	"correction-workflow/internal/domain"
)

const StageNotificationWorkflowName = "StageNotificationWorkflow"

type NotificationResult struct {
	EventID   string
	Notified  int
	EmailKey  string
	EmailSent bool
}

// StageNotificationWorkflow fans one committed stage change out to the
// in-app inbox and the mail drop. A failed email does not fail the workflow;
// the in-app notification is the delivery of record.
func StageNotificationWorkflow(ctx workflow.Context, event domain.StageEvent) (NotificationResult, error) {
	logger := workflow.GetLogger(ctx)
	result := NotificationResult{EventID: event.ID}

	var notified NotifyRecipientsOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyNotifyRecipients), (*Activities).NotifyRecipientsActivity, NotifyRecipientsInput{
		Event: event,
	}).Get(ctx, &notified); err != nil {
		return result, err
	}
	result.Notified = notified.Inserted

	var sent SendStageEmailOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicySendStageEmail), (*Activities).SendStageEmailActivity, SendStageEmailInput{
		Event: event,
	}).Get(ctx, &sent); err != nil {
		logger.Warn("stage email not queued", "event_id", event.ID, "document_id", event.DocumentID, "error", err)
		return result, nil
	}
	result.EmailKey = sent.ObjectKey
	result.EmailSent = sent.ObjectKey != ""

	return result, nil
}
