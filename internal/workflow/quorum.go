package workflow

import (
	"context"
	"fmt"

	"correction-workflow/internal/domain"
)

type Quorum struct {
	Complete  bool `json:"complete"`
	Required  int  `json:"required"`
	Satisfied int  `json:"satisfied"`
}

// QuorumChecker derives stage completeness from history on every call. It
// only reads.
type QuorumChecker struct {
	rejectAction string
}

func NewQuorumChecker(rejectAction string) QuorumChecker {
	return QuorumChecker{rejectAction: rejectAction}
}

// Check counts the required (non-reject) transitions at stage against the
// distinct users holding an approving history row there. Stage 0 never waits.
func (q QuorumChecker) Check(ctx context.Context, tx Tx, stages StageResolver, doc domain.Document, stage int) (Quorum, error) {
	if stage == 0 {
		return Quorum{Complete: true, Required: 1, Satisfied: 1}, nil
	}

	candidates, err := stages.Transitions(ctx, tx, doc)
	if err != nil {
		return Quorum{}, err
	}
	required := 0
	for _, t := range candidates {
		if t.Stage == stage && t.Action != q.rejectAction {
			required++
		}
	}

	satisfied, err := tx.CountDistinctApprovers(ctx, doc.ID, stage, q.rejectAction)
	if err != nil {
		return Quorum{}, fmt.Errorf("count approvers for %s stage %d: %w", doc.ID, stage, err)
	}

	return Quorum{
		Complete:  satisfied >= required,
		Required:  required,
		Satisfied: satisfied,
	}, nil
}
