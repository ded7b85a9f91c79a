package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"correction-workflow/internal/domain"
)

// Resubmit returns a document the requester has revised to the category's
// initial state at stage 1. All approval history is purged, so every stage
// has to be approved again.
func (e *Engine) Resubmit(ctx context.Context, documentID, actorID string) (domain.Document, error) {
	var doc domain.Document
	err := e.store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return notFound(err, domain.ErrDocumentNotFound, "lock document "+documentID)
		}
		if locked.RequesterID != actorID {
			return fmt.Errorf("%w: only the requester can resubmit %s", domain.ErrActionNotPermitted, documentID)
		}
		if locked.State != e.opts.RevisionState {
			return fmt.Errorf("%w: %s is in %s", domain.ErrNotInRevision, documentID, locked.State)
		}

		initial, err := tx.InitialState(ctx, locked.Category)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no initial status for %s", domain.ErrNoTransitionDefined, locked.Category)
		}
		if err != nil {
			return fmt.Errorf("initial status for %s: %w", locked.Category, err)
		}

		purged, err := tx.PurgeHistory(ctx, documentID)
		if err != nil {
			return fmt.Errorf("purge history: %w", err)
		}
		if err := tx.UpdateDocumentState(ctx, documentID, initial, 1, nil); err != nil {
			return fmt.Errorf("reset %s: %w", documentID, err)
		}
		if err := tx.InsertAudit(ctx, domain.AuditEntry{
			DocumentID: documentID,
			ActorID:    actorID,
			ActionName: domain.AuditResubmitted,
			Detail:     fmt.Sprintf("resubmitted from %s to %s, %d history rows cleared", locked.State, initial, purged),
			CreatedAt:  e.opts.Now(),
		}); err != nil {
			return fmt.Errorf("audit resubmit: %w", err)
		}

		locked.State = initial
		locked.CurrentStage = 1
		locked.ContinuationToken = nil
		doc = locked
		return nil
	})
	if err != nil {
		return domain.Document{}, classify(err)
	}

	e.logger.Info("document resubmitted", zap.String("document_id", documentID), zap.String("state", doc.State))
	e.announce(ctx, documentID, domain.EventSubmitted, actorID, "")
	return doc, nil
}
