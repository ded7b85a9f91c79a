package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"correction-workflow/internal/domain"
)

// DefaultMaxBulkDocuments caps one bulk request when Options leaves it unset.
const DefaultMaxBulkDocuments = 100

type Options struct {
	ApproveAction string
	RejectAction  string
	RevisionState string
	ClosedState   string

	Now      func() time.Time
	NewToken func() string
	// DispatchTimeout bounds the post-commit fan-out. It is detached from the
	// caller's context so a finished request does not cancel notification.
	DispatchTimeout time.Duration
	// MaxBulkDocuments is the most distinct ids one ApplyBulk call accepts.
	MaxBulkDocuments int
}

func (o Options) withDefaults() Options {
	if o.ApproveAction == "" {
		o.ApproveAction = domain.DefaultApproveAction
	}
	if o.RejectAction == "" {
		o.RejectAction = domain.DefaultRejectAction
	}
	if o.RevisionState == "" {
		o.RevisionState = domain.DefaultRevisionState
	}
	if o.ClosedState == "" {
		o.ClosedState = domain.DefaultClosedState
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewToken == nil {
		o.NewToken = uuid.NewString
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 10 * time.Second
	}
	if o.MaxBulkDocuments <= 0 {
		o.MaxBulkDocuments = DefaultMaxBulkDocuments
	}
	return o
}

type ApplyRequest struct {
	DocumentID string `json:"document_id"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id"`
	Comment    string `json:"comment,omitempty"`
}

type Engine struct {
	store      Store
	roles      *RoleResolver
	dispatcher Dispatcher
	logger     *zap.Logger
	opts       Options

	catalog *CatalogStages
	legacy  *LegacyStages
	quorum  QuorumChecker
}

func NewEngine(store Store, roles *RoleResolver, dispatcher Dispatcher, logger *zap.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	if roles == nil {
		roles = NewRoleResolver(domain.DefaultRoleMapping())
	}
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		roles:      roles,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
		catalog:    NewCatalogStages(roles, opts.RejectAction),
		legacy:     NewLegacyStages(roles, opts),
		quorum:     NewQuorumChecker(opts.RejectAction),
	}
}

func (e *Engine) Options() Options { return e.opts }

// stagesFor picks the catalog when the category has at least one transition
// row and the legacy step list otherwise.
func (e *Engine) stagesFor(ctx context.Context, tx Tx, category string) (StageResolver, error) {
	has, err := tx.CategoryHasTransitions(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("check catalog for %s: %w", category, err)
	}
	if has {
		return e.catalog, nil
	}
	return e.legacy, nil
}

func (e *Engine) permitted(t domain.Transition, actor domain.User, doc domain.Document) bool {
	if !e.roles.Satisfies(actor.Role, t.RequiredRole) {
		return false
	}
	if t.DepartmentScoped && actor.Department != doc.Department {
		return false
	}
	return true
}

func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (domain.Result, error) {
	return e.apply(ctx, req, "")
}

// ApplyWithToken acts on whichever document currently holds token. The token
// is checked again under the row lock, so a link that went stale between the
// lookup and the lock is refused.
func (e *Engine) ApplyWithToken(ctx context.Context, token string, req ApplyRequest) (domain.Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Result{}, fmt.Errorf("%w: continuation token is required", domain.ErrInvalidActionInput)
	}

	var documentID string
	err := e.store.ReadOnly(ctx, func(tx Tx) error {
		id, err := tx.DocumentIDByToken(ctx, token)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: continuation token is not active", domain.ErrActionNotPermitted)
		}
		if err != nil {
			return fmt.Errorf("resolve continuation token: %w", err)
		}
		documentID = id
		return nil
	})
	if err != nil {
		return domain.Result{}, classify(err)
	}

	req.DocumentID = documentID
	return e.apply(ctx, req, token)
}

func (e *Engine) validate(req ApplyRequest) error {
	res := domain.ValidateActionInput(domain.ActionInput{
		DocumentID: req.DocumentID,
		Action:     req.Action,
		ActorID:    req.ActorID,
		Comment:    req.Comment,
	}, e.opts.RejectAction)
	if strings.TrimSpace(req.DocumentID) == "" {
		res.FailedRules = append(res.FailedRules, "action.document_required")
	}
	if !domain.ValidationPassed(res) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidActionInput, strings.Join(res.FailedRules, ", "))
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, req ApplyRequest, token string) (domain.Result, error) {
	if err := e.validate(req); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	err := e.store.InTx(ctx, func(tx Tx) error {
		doc, err := tx.LockDocument(ctx, req.DocumentID)
		if err != nil {
			return notFound(err, domain.ErrDocumentNotFound, "lock document "+req.DocumentID)
		}
		if token != "" && (doc.ContinuationToken == nil || *doc.ContinuationToken != token) {
			return fmt.Errorf("%w: continuation token is not active", domain.ErrActionNotPermitted)
		}

		actor, err := tx.GetUser(ctx, req.ActorID)
		if err != nil {
			return notFound(err, domain.ErrUserNotFound, "load user "+req.ActorID)
		}

		stages, err := e.stagesFor(ctx, tx, doc.Category)
		if err != nil {
			return err
		}
		terminal, err := stages.IsTerminal(ctx, tx, doc.Category, doc.State)
		if err != nil {
			return err
		}
		if terminal {
			return fmt.Errorf("%w: %s is in %s", domain.ErrAlreadyTerminal, doc.ID, doc.State)
		}

		candidates, err := stages.Transitions(ctx, tx, doc)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			e.logger.Warn("no transitions configured",
				zap.String("document_id", doc.ID),
				zap.String("category", doc.Category),
				zap.String("state", doc.State),
				zap.Strings("correction_types", doc.CorrectionTypes),
			)
			return fmt.Errorf("%w: %s in %s", domain.ErrNoTransitionDefined, doc.Category, doc.State)
		}

		done, err := tx.SatisfiedStages(ctx, doc.ID, actor.ID, e.opts.RejectAction)
		if err != nil {
			return fmt.Errorf("satisfied stages for %s: %w", actor.ID, err)
		}
		matched, ok := e.match(candidates, req.Action, actor, doc, done)
		if !ok {
			return fmt.Errorf("%w: %s cannot %s %s", domain.ErrActionNotPermitted, actor.ID, req.Action, doc.ID)
		}

		if matched.Action == e.opts.RejectAction {
			if matched.Stage == 0 {
				matched.Stage = e.activeStage(candidates, doc)
			}
			result, err = e.reject(ctx, tx, doc, actor, matched, req.Comment)
		} else {
			result, err = e.approve(ctx, tx, stages, doc, actor, matched, req.Comment)
		}
		return err
	})
	if err != nil {
		return domain.Result{}, classify(err)
	}

	e.logger.Info("action applied",
		zap.String("document_id", result.DocumentID),
		zap.String("actor_id", req.ActorID),
		zap.String("action", req.Action),
		zap.String("outcome", string(result.Outcome)),
		zap.String("state", result.State),
		zap.Int("stage", result.Stage),
	)

	switch result.Outcome {
	case domain.OutcomeRejected:
		e.announce(ctx, result.DocumentID, domain.EventRejected, req.ActorID, req.Comment)
	case domain.OutcomeAdvanced:
		e.announce(ctx, result.DocumentID, domain.EventAwaitingApproval, req.ActorID, req.Comment)
	}
	return result, nil
}

// match returns the first candidate (stage, then catalog order) for action
// that the actor satisfies, preferring stages not yet in done. When every
// permitted row sits at a done stage the first one is returned, so a repeated
// approval still reports the stage's quorum.
func (e *Engine) match(candidates []domain.Transition, action string, actor domain.User, doc domain.Document, done []int) (domain.Transition, bool) {
	var fallback domain.Transition
	found := false
	for _, t := range candidates {
		if t.Action != action || !e.permitted(t, actor, doc) {
			continue
		}
		if t.Action == e.opts.RejectAction || !slices.Contains(done, t.Stage) {
			return t, true
		}
		if !found {
			fallback, found = t, true
		}
	}
	return fallback, found
}

// activeStage is the lowest approval stage among candidates, or the stored
// stage when the rows carry none.
func (e *Engine) activeStage(candidates []domain.Transition, doc domain.Document) int {
	stage := 0
	for _, t := range candidates {
		if t.Action == e.opts.RejectAction || t.Stage <= 0 {
			continue
		}
		if stage == 0 || t.Stage < stage {
			stage = t.Stage
		}
	}
	if stage == 0 {
		return doc.CurrentStage
	}
	return stage
}

func (e *Engine) reject(ctx context.Context, tx Tx, doc domain.Document, actor domain.User, t domain.Transition, comment string) (domain.Result, error) {
	now := e.opts.Now()
	if _, err := tx.AppendHistory(ctx, domain.HistoryRecord{
		DocumentID: doc.ID,
		UserID:     actor.ID,
		Stage:      t.Stage,
		ActionType: t.Action,
		Comment:    comment,
		CreatedAt:  now,
	}); err != nil {
		return domain.Result{}, fmt.Errorf("append reject history: %w", err)
	}

	if err := tx.UpdateDocumentState(ctx, doc.ID, t.NextState, nextStage(t, doc), nil); err != nil {
		return domain.Result{}, fmt.Errorf("move %s to %s: %w", doc.ID, t.NextState, err)
	}

	if err := tx.InsertAudit(ctx, domain.AuditEntry{
		DocumentID: doc.ID,
		ActorID:    actor.ID,
		ActionName: domain.AuditRejected,
		Detail:     fmt.Sprintf("%s rejected at stage %d (%s -> %s): %s", actor.ID, t.Stage, doc.State, t.NextState, comment),
		CreatedAt:  now,
	}); err != nil {
		return domain.Result{}, fmt.Errorf("audit reject: %w", err)
	}

	return domain.Result{
		Outcome:    domain.OutcomeRejected,
		DocumentID: doc.ID,
		State:      t.NextState,
		Stage:      t.Stage,
	}, nil
}

func (e *Engine) approve(ctx context.Context, tx Tx, stages StageResolver, doc domain.Document, actor domain.User, t domain.Transition, comment string) (domain.Result, error) {
	now := e.opts.Now()
	inserted, err := tx.AppendHistory(ctx, domain.HistoryRecord{
		DocumentID: doc.ID,
		UserID:     actor.ID,
		Stage:      t.Stage,
		ActionType: t.Action,
		Comment:    comment,
		CreatedAt:  now,
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("append history: %w", err)
	}
	if !inserted {
		e.logger.Debug("duplicate approval ignored",
			zap.String("document_id", doc.ID),
			zap.String("actor_id", actor.ID),
			zap.Int("stage", t.Stage),
		)
	}

	q, err := e.quorum.Check(ctx, tx, stages, doc, t.Stage)
	if err != nil {
		return domain.Result{}, err
	}

	if !q.Complete {
		if err := tx.InsertAudit(ctx, domain.AuditEntry{
			DocumentID: doc.ID,
			ActorID:    actor.ID,
			ActionName: domain.AuditWaiting,
			Detail:     fmt.Sprintf("%s by %s at stage %d: %d of %d approvals", t.Action, actor.ID, t.Stage, q.Satisfied, q.Required),
			CreatedAt:  now,
		}); err != nil {
			return domain.Result{}, fmt.Errorf("audit waiting: %w", err)
		}
		return domain.Result{
			Outcome:    domain.OutcomeWaiting,
			DocumentID: doc.ID,
			State:      doc.State,
			Stage:      t.Stage,
			Satisfied:  q.Satisfied,
			Required:   q.Required,
		}, nil
	}

	terminal, err := stages.IsTerminal(ctx, tx, doc.Category, t.NextState)
	if err != nil {
		return domain.Result{}, err
	}
	var token *string
	if !terminal {
		v := e.opts.NewToken()
		token = &v
	}

	stage, err := e.enteredStage(ctx, tx, stages, doc, t, terminal)
	if err != nil {
		return domain.Result{}, err
	}
	if err := tx.UpdateDocumentState(ctx, doc.ID, t.NextState, stage, token); err != nil {
		return domain.Result{}, fmt.Errorf("move %s to %s: %w", doc.ID, t.NextState, err)
	}

	if err := tx.InsertAudit(ctx, domain.AuditEntry{
		DocumentID: doc.ID,
		ActorID:    actor.ID,
		ActionName: domain.AuditAdvanced,
		Detail:     fmt.Sprintf("%s by %s: %s -> %s (stage %d, %d of %d approvals)", t.Action, actor.ID, doc.State, t.NextState, t.Stage, q.Satisfied, q.Required),
		CreatedAt:  now,
	}); err != nil {
		return domain.Result{}, fmt.Errorf("audit advance: %w", err)
	}

	return domain.Result{
		Outcome:           domain.OutcomeAdvanced,
		DocumentID:        doc.ID,
		State:             t.NextState,
		Stage:             stage,
		Satisfied:         q.Satisfied,
		Required:          q.Required,
		ContinuationToken: token,
	}, nil
}

// enteredStage is the stage doc sits at once t has fired. Legacy rows name it;
// for catalog rows it is the lowest approval stage of the next state, and a
// terminal state keeps the stage that closed it.
func (e *Engine) enteredStage(ctx context.Context, tx Tx, stages StageResolver, doc domain.Document, t domain.Transition, terminal bool) (int, error) {
	if t.NextStage > 0 {
		return t.NextStage, nil
	}
	if terminal {
		return max(t.Stage, doc.CurrentStage), nil
	}
	next := doc
	next.State = t.NextState
	rows, err := stages.Transitions(ctx, tx, next)
	if err != nil {
		return 0, err
	}
	next.CurrentStage = max(t.Stage, doc.CurrentStage)
	return e.activeStage(rows, next), nil
}

// nextStage keeps the document's stage counter for catalog rows, which carry
// no explicit next stage.
func nextStage(t domain.Transition, doc domain.Document) int {
	if t.NextStage > 0 {
		return t.NextStage
	}
	return doc.CurrentStage
}

// PossibleActions lists what actorID may do on documentID right now. Actions
// at stages the actor has already approved are left out; reject stays
// available.
func (e *Engine) PossibleActions(ctx context.Context, documentID, actorID string) ([]domain.Action, error) {
	actions := make([]domain.Action, 0)
	err := e.store.ReadOnly(ctx, func(tx Tx) error {
		doc, err := tx.GetDocument(ctx, documentID)
		if err != nil {
			return notFound(err, domain.ErrDocumentNotFound, "load document "+documentID)
		}
		actor, err := tx.GetUser(ctx, actorID)
		if err != nil {
			return notFound(err, domain.ErrUserNotFound, "load user "+actorID)
		}

		stages, err := e.stagesFor(ctx, tx, doc.Category)
		if err != nil {
			return err
		}
		terminal, err := stages.IsTerminal(ctx, tx, doc.Category, doc.State)
		if err != nil || terminal {
			return err
		}
		candidates, err := stages.Transitions(ctx, tx, doc)
		if err != nil {
			return err
		}
		done, err := tx.SatisfiedStages(ctx, doc.ID, actor.ID, e.opts.RejectAction)
		if err != nil {
			return fmt.Errorf("satisfied stages for %s: %w", actor.ID, err)
		}

		seen := make(map[string]struct{})
		for _, t := range candidates {
			if !e.permitted(t, actor, doc) {
				continue
			}
			if t.Action != e.opts.RejectAction && slices.Contains(done, t.Stage) {
				continue
			}
			if _, ok := seen[t.Action]; ok {
				continue
			}
			seen[t.Action] = struct{}{}
			actions = append(actions, domain.Action{Name: t.Action})
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return actions, nil
}

func (e *Engine) History(ctx context.Context, documentID string) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	err := e.store.ReadOnly(ctx, func(tx Tx) error {
		if _, err := tx.GetDocument(ctx, documentID); err != nil {
			return notFound(err, domain.ErrDocumentNotFound, "load document "+documentID)
		}
		records, err := tx.ListHistory(ctx, documentID)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		out = records
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (e *Engine) Audit(ctx context.Context, documentID string) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := e.store.ReadOnly(ctx, func(tx Tx) error {
		if _, err := tx.GetDocument(ctx, documentID); err != nil {
			return notFound(err, domain.ErrDocumentNotFound, "load document "+documentID)
		}
		entries, err := tx.ListAudit(ctx, documentID)
		if err != nil {
			return fmt.Errorf("list audit: %w", err)
		}
		out = entries
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func notFound(err error, sentinel error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var taxonomy = []error{
	domain.ErrActionNotPermitted,
	domain.ErrNoTransitionDefined,
	domain.ErrInvalidActionInput,
	domain.ErrAlreadyTerminal,
	domain.ErrStoreFailure,
	domain.ErrDocumentNotFound,
	domain.ErrUserNotFound,
	domain.ErrNotInRevision,
}

// classify leaves engine errors alone and tags everything else coming out of
// a transaction as a store failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
}
