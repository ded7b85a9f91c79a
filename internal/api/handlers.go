package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"correction-workflow/internal/domain"
	"correction-workflow/internal/workflow"
)

const ActorHeader = "X-User-ID"

// Engine is the engine surface the HTTP layer drives.
type Engine interface {
	Apply(ctx context.Context, req workflow.ApplyRequest) (domain.Result, error)
	ApplyWithToken(ctx context.Context, token string, req workflow.ApplyRequest) (domain.Result, error)
	ApplyBulk(ctx context.Context, req workflow.BulkRequest) (workflow.BulkResult, error)
	PossibleActions(ctx context.Context, documentID, actorID string) ([]domain.Action, error)
	Resubmit(ctx context.Context, documentID, actorID string) (domain.Document, error)
	History(ctx context.Context, documentID string) ([]domain.HistoryRecord, error)
	Audit(ctx context.Context, documentID string) ([]domain.AuditEntry, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	engine    Engine
	db        Pinger
	timeout   time.Duration
	bulkLimit int
	logger    *zap.Logger
}

type actionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment,omitempty"`
}

type bulkRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Action      string   `json:"action"`
	Comment     string   `json:"comment,omitempty"`
}

func NewHandler(engine Engine, db Pinger, timeout time.Duration, logger *zap.Logger) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, db: db, timeout: timeout, bulkLimit: workflow.DefaultMaxBulkDocuments, logger: logger}
}

// WithBulkLimit sets the most document ids one bulk request may carry.
func (h *Handler) WithBulkLimit(n int) *Handler {
	if n > 0 {
		h.bulkLimit = n
	}
	return h
}

func (h *Handler) ApplyAction(w http.ResponseWriter, r *http.Request, documentID string) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.engine.Apply(ctx, workflow.ApplyRequest{
		DocumentID: documentID,
		Action:     req.Action,
		ActorID:    actorID,
		Comment:    req.Comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ApplyWithToken(w http.ResponseWriter, r *http.Request, token string) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.engine.ApplyWithToken(ctx, token, workflow.ApplyRequest{
		Action:  req.Action,
		ActorID: actorID,
		Comment: req.Comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ApplyBulk(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.DocumentIDs) > h.bulkLimit {
		h.writeError(w, fmt.Errorf("%w: action.too_many_documents (%d > %d)", domain.ErrInvalidActionInput, len(req.DocumentIDs), h.bulkLimit))
		return
	}

	// Each document is its own transaction, so the whole batch gets a longer budget.
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout*time.Duration(max(1, len(req.DocumentIDs))))
	defer cancel()

	res, err := h.engine.ApplyBulk(ctx, workflow.BulkRequest{
		DocumentIDs: req.DocumentIDs,
		Action:      req.Action,
		ActorID:     actorID,
		Comment:     req.Comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) PossibleActions(w http.ResponseWriter, r *http.Request, documentID string) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actions, err := h.engine.PossibleActions(ctx, documentID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "actions": actions})
}

func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request, documentID string) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	doc, err := h.engine.Resubmit(ctx, documentID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.engine.History(ctx, documentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "items": items})
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request, documentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.engine.Audit(ctx, documentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "items": items})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatusFor maps engine errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidActionInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrActionNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDocumentNotFound), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoTransitionDefined),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrNotInRevision):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreFailure),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		// Store details stay in the log.
		writeJSON(w, status, map[string]any{"error": http.StatusText(status)})
		return
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actorID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": ActorHeader + " header is required"})
		return "", false
	}
	return actorID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
