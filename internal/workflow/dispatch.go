package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"correction-workflow/internal/domain"
)

// announce builds the stage event for a committed change and hands it to the
// dispatcher. Failures here are logged and never reach the caller, whose
// change is already durable.
func (e *Engine) announce(ctx context.Context, documentID string, kind domain.StageEventKind, actorID, comment string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.DispatchTimeout)
	defer cancel()

	event, err := e.buildEvent(ctx, documentID, kind, actorID, comment)
	if err != nil {
		e.logger.Warn("resolve stage event", zap.String("document_id", documentID), zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if len(event.Recipients) == 0 {
		e.logger.Info("stage event has no recipients", zap.String("document_id", documentID), zap.String("kind", string(event.Kind)))
		return
	}
	if err := e.dispatcher.Publish(ctx, event); err != nil {
		e.logger.Warn("publish stage event", zap.String("event_id", event.ID), zap.String("document_id", documentID), zap.Error(err))
	}
}

func (e *Engine) buildEvent(ctx context.Context, documentID string, kind domain.StageEventKind, actorID, comment string) (domain.StageEvent, error) {
	var event domain.StageEvent
	err := e.store.ReadOnly(ctx, func(tx Tx) error {
		doc, err := tx.GetDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		stages, err := e.stagesFor(ctx, tx, doc.Category)
		if err != nil {
			return err
		}

		if kind == domain.EventAwaitingApproval {
			terminal, err := stages.IsTerminal(ctx, tx, doc.Category, doc.State)
			if err != nil {
				return err
			}
			if terminal {
				kind = domain.EventClosed
			}
		}

		var recipients []domain.User
		switch kind {
		case domain.EventAwaitingApproval, domain.EventSubmitted:
			recipients, err = stages.Approvers(ctx, tx, doc)
			if err != nil {
				return err
			}
		default:
			requester, err := tx.GetUser(ctx, doc.RequesterID)
			if err != nil {
				return fmt.Errorf("load requester %s: %w", doc.RequesterID, err)
			}
			recipients = []domain.User{requester}
		}

		event = domain.StageEvent{
			ID:         uuid.NewString(),
			Kind:       kind,
			DocumentID: doc.ID,
			Category:   doc.Category,
			State:      doc.State,
			Stage:      doc.CurrentStage,
			ActorID:    actorID,
			Comment:    comment,
			Recipients: recipients,
			OccurredAt: e.opts.Now(),
		}
		if doc.ContinuationToken != nil {
			event.ContinuationToken = *doc.ContinuationToken
		}
		return nil
	})
	return event, err
}
