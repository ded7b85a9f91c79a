package workflow

import (
	"context"
	"fmt"
	"sort"

	"correction-workflow/internal/domain"
)

// StageResolver answers where a document can go next. Categories with catalog
// rows use CatalogStages; categories with none fall back to LegacyStages.
type StageResolver interface {
	Transitions(ctx context.Context, tx Tx, doc domain.Document) ([]domain.Transition, error)
	IsTerminal(ctx context.Context, tx Tx, category, state string) (bool, error)
	// Approvers lists the users who may act on doc in its current state.
	Approvers(ctx context.Context, tx Tx, doc domain.Document) ([]domain.User, error)
}

type CatalogStages struct {
	resolver     TransitionResolver
	roles        *RoleResolver
	rejectAction string
}

func NewCatalogStages(roles *RoleResolver, rejectAction string) *CatalogStages {
	return &CatalogStages{roles: roles, rejectAction: rejectAction}
}

func (c *CatalogStages) Transitions(ctx context.Context, tx Tx, doc domain.Document) ([]domain.Transition, error) {
	return c.resolver.Resolve(ctx, tx, doc.Category, doc.State, doc.CorrectionTypes)
}

// IsTerminal is true when no row under any correction type leaves state.
func (c *CatalogStages) IsTerminal(ctx context.Context, tx Tx, category, state string) (bool, error) {
	has, err := tx.HasOutgoingTransitions(ctx, category, state)
	if err != nil {
		return false, fmt.Errorf("outgoing transitions for %s/%s: %w", category, state, err)
	}
	return !has, nil
}

func (c *CatalogStages) Approvers(ctx context.Context, tx Tx, doc domain.Document) ([]domain.User, error) {
	candidates, err := c.Transitions(ctx, tx, doc)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := make([]domain.User, 0)
	for _, t := range candidates {
		if t.Action == c.rejectAction {
			continue
		}
		department := ""
		if t.DepartmentScoped {
			department = doc.Department
		}
		users, err := tx.UsersWithRoles(ctx, c.roles.Expand(t.RequiredRole), department)
		if err != nil {
			return nil, fmt.Errorf("users for role %s: %w", t.RequiredRole, err)
		}
		for _, u := range users {
			if _, dup := seen[u.ID]; dup {
				continue
			}
			seen[u.ID] = struct{}{}
			out = append(out, u)
		}
	}
	return out, nil
}

// LegacyStages drives categories configured only with an ordered list of
// approver roles. Each step offers approve and reject; approving the last
// step closes the document and rejecting any step sends it to revision.
type LegacyStages struct {
	roles         *RoleResolver
	approveAction string
	rejectAction  string
	closedState   string
	revisionState string
}

func NewLegacyStages(roles *RoleResolver, opts Options) *LegacyStages {
	return &LegacyStages{
		roles:         roles,
		approveAction: opts.ApproveAction,
		rejectAction:  opts.RejectAction,
		closedState:   opts.ClosedState,
		revisionState: opts.RevisionState,
	}
}

func (l *LegacyStages) steps(ctx context.Context, tx Tx, category string) ([]domain.LegacyStep, error) {
	steps, err := tx.ListLegacySteps(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("legacy steps for %s: %w", category, err)
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Stage < steps[j].Stage })
	return steps, nil
}

func (l *LegacyStages) Transitions(ctx context.Context, tx Tx, doc domain.Document) ([]domain.Transition, error) {
	steps, err := l.steps(ctx, tx, doc.Category)
	if err != nil {
		return nil, err
	}

	current := doc.CurrentStage
	if current < 1 {
		current = 1
	}
	idx := -1
	for i, s := range steps {
		if s.Stage == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	step := steps[idx]
	approve := domain.Transition{
		Category:         doc.Category,
		FromState:        doc.State,
		Action:           l.approveAction,
		RequiredRole:     step.ApproverRole,
		NextState:        doc.State,
		Stage:            step.Stage,
		DepartmentScoped: step.DepartmentScoped,
		NextStage:        step.Stage,
	}
	if idx == len(steps)-1 {
		approve.NextState = l.closedState
	} else {
		approve.NextStage = steps[idx+1].Stage
	}

	reject := approve
	reject.Action = l.rejectAction
	reject.NextState = l.revisionState
	reject.NextStage = step.Stage

	return []domain.Transition{approve, reject}, nil
}

func (l *LegacyStages) IsTerminal(_ context.Context, _ Tx, _ string, state string) (bool, error) {
	return state == l.closedState || state == l.revisionState, nil
}

func (l *LegacyStages) Approvers(ctx context.Context, tx Tx, doc domain.Document) ([]domain.User, error) {
	u, ok, err := l.ApproverForStep(ctx, tx, doc.Category, doc.CurrentStage, doc.Department)
	if err != nil || !ok {
		return nil, err
	}
	return []domain.User{u}, nil
}

// ApproverForStep picks the first user holding the step's role, limited to
// department when the step is department scoped.
func (l *LegacyStages) ApproverForStep(ctx context.Context, tx Tx, category string, stage int, department string) (domain.User, bool, error) {
	steps, err := l.steps(ctx, tx, category)
	if err != nil {
		return domain.User{}, false, err
	}
	for _, s := range steps {
		if s.Stage != stage {
			continue
		}
		scope := ""
		if s.DepartmentScoped {
			scope = department
		}
		users, err := tx.UsersWithRoles(ctx, l.roles.Expand(s.ApproverRole), scope)
		if err != nil {
			return domain.User{}, false, fmt.Errorf("approver for %s step %d: %w", category, stage, err)
		}
		if len(users) == 0 {
			return domain.User{}, false, nil
		}
		return users[0], true, nil
	}
	return domain.User{}, false, nil
}
