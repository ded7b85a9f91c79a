package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"correction-workflow/internal/domain"
)

const ErrTypeTemplate = "TemplateError"

type NotificationStore interface {
	InsertNotification(ctx context.Context, eventID, userID, documentID, message string) (bool, error)
}

type MailDrop interface {
	PutMessage(ctx context.Context, documentID, eventID string, message []byte) (string, error)
}

type Activities struct {
	Store NotificationStore
	Mail  MailDrop

	// From is the sender and reply-to address on every message.
	From    string
	BaseURL string
}

type NotifyRecipientsInput struct {
	Event domain.StageEvent
}

type NotifyRecipientsOutput struct {
	Inserted int
	Skipped  int
}

type SendStageEmailInput struct {
	Event domain.StageEvent
}

type SendStageEmailOutput struct {
	ObjectKey  string
	Recipients int
}

func (a *Activities) NotifyRecipientsActivity(ctx context.Context, input NotifyRecipientsInput) (NotifyRecipientsOutput, error) {
	var out NotifyRecipientsOutput
	message := notificationText(input.Event)
	for _, u := range input.Event.Recipients {
		inserted, err := a.Store.InsertNotification(ctx, input.Event.ID, u.ID, input.Event.DocumentID, message)
		if err != nil {
			return out, fmt.Errorf("notify %s: %w", u.ID, err)
		}
		if inserted {
			out.Inserted++
		} else {
			out.Skipped++
		}
	}
	activity.GetLogger(ctx).Info("notifications stored", "event_id", input.Event.ID, "inserted", out.Inserted, "skipped", out.Skipped)
	return out, nil
}

// SendStageEmailActivity renders one message addressed to every recipient
// with an email address and drops it for the relay. Recipients without an
// address only get the in-app notification.
func (a *Activities) SendStageEmailActivity(ctx context.Context, input SendStageEmailInput) (SendStageEmailOutput, error) {
	to := make([]string, 0, len(input.Event.Recipients))
	for _, u := range input.Event.Recipients {
		if u.Email != "" {
			to = append(to, u.Email)
		}
	}
	if len(to) == 0 {
		return SendStageEmailOutput{}, nil
	}

	msg, err := renderEmail(emailData{
		Event:   input.Event,
		From:    a.From,
		To:      to,
		BaseURL: a.BaseURL,
	})
	if err != nil {
		return SendStageEmailOutput{}, temporal.NewNonRetryableApplicationError("render stage email", ErrTypeTemplate, err)
	}

	key, err := a.Mail.PutMessage(ctx, input.Event.DocumentID, input.Event.ID, msg)
	if err != nil {
		return SendStageEmailOutput{}, err
	}
	activity.GetLogger(ctx).Info("stage email queued", "event_id", input.Event.ID, "object_key", key, "recipients", len(to))
	return SendStageEmailOutput{ObjectKey: key, Recipients: len(to)}, nil
}
