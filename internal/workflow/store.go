package workflow

import (
	"context"

	"correction-workflow/internal/domain"
)

// CatalogReader is the read-only view of the administrative catalog. The
// engine never writes these tables.
type CatalogReader interface {
	CategoryHasTransitions(ctx context.Context, category string) (bool, error)
	ListTransitions(ctx context.Context, category, state, correctionType string) ([]domain.Transition, error)
	HasOutgoingTransitions(ctx context.Context, category, state string) (bool, error)
	InitialState(ctx context.Context, category string) (string, error)
	ListLegacySteps(ctx context.Context, category string) ([]domain.LegacyStep, error)
}

type DirectoryReader interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	UsersWithRoles(ctx context.Context, roles []string, department string) ([]domain.User, error)
}

type HistoryStore interface {
	// AppendHistory reports false when an identical (document, user, stage,
	// action) row already exists and nothing was written.
	AppendHistory(ctx context.Context, rec domain.HistoryRecord) (bool, error)
	CountDistinctApprovers(ctx context.Context, documentID string, stage int, rejectAction string) (int, error)
	SatisfiedStages(ctx context.Context, documentID, userID, rejectAction string) ([]int, error)
	ListHistory(ctx context.Context, documentID string) ([]domain.HistoryRecord, error)
	PurgeHistory(ctx context.Context, documentID string) (int64, error)
}

type DocumentStore interface {
	// LockDocument loads the document and holds a row lock until the
	// surrounding transaction ends.
	LockDocument(ctx context.Context, documentID string) (domain.Document, error)
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	DocumentIDByToken(ctx context.Context, token string) (string, error)
	UpdateDocumentState(ctx context.Context, documentID, state string, stage int, token *string) error
}

type AuditStore interface {
	InsertAudit(ctx context.Context, entry domain.AuditEntry) error
	ListAudit(ctx context.Context, documentID string) ([]domain.AuditEntry, error)
}

// Tx is everything the engine may touch inside one transaction. Missing rows
// are reported as sql.ErrNoRows.
type Tx interface {
	CatalogReader
	DirectoryReader
	HistoryStore
	DocumentStore
	AuditStore
}

type Store interface {
	// InTx runs fn in a read-committed transaction and commits only when fn
	// returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(tx Tx) error) error
}

// Dispatcher receives stage events after commit. Implementations must not
// block on the collaborators they fan out to.
type Dispatcher interface {
	Publish(ctx context.Context, event domain.StageEvent) error
}

type NopDispatcher struct{}

func (NopDispatcher) Publish(context.Context, domain.StageEvent) error { return nil }
