package domain

import "time"

// GenericCorrectionType marks catalog rows that apply to every correction type.
const GenericCorrectionType = ""

type Document struct {
	ID                string    `json:"id"`
	Category          string    `json:"category"`
	CorrectionTypes   []string  `json:"correction_types"`
	State             string    `json:"state"`
	CurrentStage      int       `json:"current_stage"`
	Department        string    `json:"department"`
	RequesterID       string    `json:"requester_id"`
	ContinuationToken *string   `json:"continuation_token,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Status struct {
	Category  string `json:"category"`
	Code      string `json:"code"`
	Label     string `json:"label"`
	IsInitial bool   `json:"is_initial"`
}

type Action struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// Transition is one catalog row. NextStage is only populated for transitions
// synthesized from legacy steps; catalog rows leave it at zero.
type Transition struct {
	ID               int64  `json:"id"`
	Category         string `json:"category"`
	CorrectionType   string `json:"correction_type,omitempty"`
	FromState        string `json:"from_state"`
	Action           string `json:"action"`
	RequiredRole     string `json:"required_role"`
	NextState        string `json:"next_state"`
	Stage            int    `json:"stage"`
	DepartmentScoped bool   `json:"department_scoped"`
	NextStage        int    `json:"next_stage,omitempty"`
}

type LegacyStep struct {
	Category         string `json:"category"`
	Stage            int    `json:"stage"`
	ApproverRole     string `json:"approver_role"`
	DepartmentScoped bool   `json:"department_scoped"`
}

type HistoryRecord struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Stage      int       `json:"stage"`
	ActionType string    `json:"action_type"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry is narrative only. Nothing in the engine reads it back to make
// a decision.
type AuditEntry struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	ActorID    string    `json:"actor_id"`
	ActionName string    `json:"action_name"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

type Result struct {
	Outcome           Outcome `json:"outcome"`
	DocumentID        string  `json:"document_id"`
	State             string  `json:"state"`
	Stage             int     `json:"stage"`
	Satisfied         int     `json:"satisfied,omitempty"`
	Required          int     `json:"required,omitempty"`
	ContinuationToken *string `json:"continuation_token,omitempty"`
}

type StageEvent struct {
	ID                string         `json:"id"`
	Kind              StageEventKind `json:"kind"`
	DocumentID        string         `json:"document_id"`
	Category          string         `json:"category"`
	State             string         `json:"state"`
	Stage             int            `json:"stage"`
	ActorID           string         `json:"actor_id"`
	Comment           string         `json:"comment,omitempty"`
	Recipients        []User         `json:"recipients"`
	ContinuationToken string         `json:"continuation_token,omitempty"`
	OccurredAt        time.Time      `json:"occurred_at"`
}
