package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"correction-workflow/internal/domain"
)

type BulkRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Action      string   `json:"action"`
	ActorID     string   `json:"actor_id"`
	Comment     string   `json:"comment,omitempty"`
}

type BulkItem struct {
	DocumentID string         `json:"document_id"`
	Result     *domain.Result `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`

	err error
}

// Err is the failure behind Error, for callers that need errors.Is.
func (i BulkItem) Err() error { return i.err }

type BulkSkip struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

type BulkResult struct {
	Items   []BulkItem `json:"items"`
	Skipped []BulkSkip `json:"skipped"`
}

// ApplyBulk runs the single-document transaction once per id. Ids the actor
// cannot act on land in Skipped; any other failure is recorded on its item
// and the batch carries on.
func (e *Engine) ApplyBulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	out := BulkResult{Items: make([]BulkItem, 0, len(req.DocumentIDs)), Skipped: make([]BulkSkip, 0)}

	ids := make([]string, 0, len(req.DocumentIDs))
	seen := make(map[string]struct{}, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, fmt.Errorf("%w: action.documents_required", domain.ErrInvalidActionInput)
	}
	if len(ids) > e.opts.MaxBulkDocuments {
		return out, fmt.Errorf("%w: action.too_many_documents (%d > %d)", domain.ErrInvalidActionInput, len(ids), e.opts.MaxBulkDocuments)
	}
	if err := e.validate(ApplyRequest{DocumentID: ids[0], Action: req.Action, ActorID: req.ActorID, Comment: req.Comment}); err != nil {
		return out, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := e.Apply(ctx, ApplyRequest{
			DocumentID: id,
			Action:     req.Action,
			ActorID:    req.ActorID,
			Comment:    req.Comment,
		})
		switch {
		case err == nil:
			r := res
			out.Items = append(out.Items, BulkItem{DocumentID: id, Result: &r})
		case domain.IsEligibilityError(err):
			out.Skipped = append(out.Skipped, BulkSkip{DocumentID: id, Reason: err.Error()})
		default:
			e.logger.Warn("bulk item failed", zap.String("document_id", id), zap.String("action", req.Action), zap.Error(err))
			out.Items = append(out.Items, BulkItem{DocumentID: id, Error: err.Error(), err: err})
		}
	}
	return out, nil
}
