package domain

type Outcome string

const (
	OutcomeRejected Outcome = "REJECTED"
	OutcomeWaiting  Outcome = "WAITING"
	OutcomeAdvanced Outcome = "ADVANCED"
)

type StageEventKind string

const (
	// EventAwaitingApproval goes to the approvers of the stage the document just entered.
	EventAwaitingApproval StageEventKind = "AWAITING_APPROVAL"
	EventClosed           StageEventKind = "CLOSED"
	EventRejected         StageEventKind = "REJECTED"
	EventSubmitted        StageEventKind = "SUBMITTED"
)

const (
	DefaultApproveAction = "approve"
	DefaultRejectAction  = "reject"
	DefaultRevisionState = "revision"
	DefaultClosedState   = "closed"
)

// Audit action names recorded alongside the acting user's requested action.
const (
	AuditWaiting     = "WAITING"
	AuditAdvanced    = "ADVANCED"
	AuditRejected    = "REJECTED"
	AuditResubmitted = "RESUBMITTED"
)
