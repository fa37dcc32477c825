package model

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PendingState tracks a pending action through confirmation.
type PendingState string

const (
	PendingNone     PendingState = "NONE"
	PendingAwaiting PendingState = "AWAITING_CONFIRMATION"
	PendingExec     PendingState = "EXECUTING"
)

// Execution outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Conversation is a chat session. It owns an ordered message history and at
// most one pending action, held inline as a nullable structured field.
// Conversations are archived, never deleted.
type Conversation struct {
	ConversationID string         `json:"conversationId"`
	UserID         string         `json:"userId"`
	Title          string         `json:"title"`
	Archived       bool           `json:"archived"`
	Pending        *PendingAction `json:"pending,omitempty"`
	CreationTime   time.Time      `json:"creationTime"`
	UpdateTime     time.Time      `json:"updateTime"`
}

// Message is immutable once appended; ordering is insertion order.
type Message struct {
	MessageID      string                 `json:"messageId"`
	ConversationID string                 `json:"conversationId"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreationTime   time.Time              `json:"creationTime"`
}

// CandidateAction is an unconfirmed, model-proposed action instance.
type CandidateAction struct {
	Type       string                 `json:"type"`
	Params     map[string]interface{} `json:"params"`
	Confidence float64                `json:"confidence"`
}

// PendingAction is a validated candidate awaiting user confirmation. The
// idempotency key is minted at validation time and can be confirmed at most
// once.
type PendingAction struct {
	CandidateAction
	IdempotencyKey string       `json:"idempotencyKey"`
	State          PendingState `json:"state"`
	CreationTime   time.Time    `json:"creationTime"`
	ExpiresAt      time.Time    `json:"expiresAt"`
}

// Expired reports whether the pending action's expiry has elapsed at now.
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ExecutionRecord is the durable, immutable outcome of executing a confirmed
// action. At most one exists per idempotency key.
type ExecutionRecord struct {
	RecordID       string    `json:"recordId"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	IdempotencyKey string    `json:"idempotencyKey"`
	ActionType     string    `json:"actionType"`
	Outcome        string    `json:"outcome"`
	EntityID       string    `json:"entityId,omitempty"`
	FailureReason  string    `json:"failureReason,omitempty"`
	CreationTime   time.Time `json:"creationTime"`
}

// UserContext carries the externally authenticated identity passed into
// validation and execution.
type UserContext struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// --- Domain rows ---

// LeaveType is a configured category of leave (Annual, Medical, ...).
type LeaveType struct {
	LeaveTypeID string `json:"leaveTypeId"`
	Name        string `json:"name"`
	DefaultDays int    `json:"defaultDays"`
	Active      bool   `json:"active"`
}

// LeaveBalance is one user's entitlement for a leave type and year.
type LeaveBalance struct {
	UserID      string `json:"userId"`
	LeaveTypeID string `json:"leaveTypeId"`
	Year        int    `json:"year"`
	TotalDays   int    `json:"totalDays"`
	UsedDays    int    `json:"usedDays"`
	PendingDays int    `json:"pendingDays"`
}

// Remaining returns the days still available to request.
func (b LeaveBalance) Remaining() int { return b.TotalDays - b.UsedDays - b.PendingDays }

// LeaveRequest is a submitted leave application.
type LeaveRequest struct {
	LeaveID      string    `json:"leaveId"`
	UserID       string    `json:"userId"`
	LeaveTypeID  string    `json:"leaveTypeId"`
	StartDate    string    `json:"startDate"`
	EndDate      string    `json:"endDate"`
	TotalDays    int       `json:"totalDays"`
	Reason       string    `json:"reason,omitempty"`
	Status       string    `json:"status"`
	CreationTime time.Time `json:"creationTime"`
}

// Room is a bookable meeting room.
type Room struct {
	RoomID   string `json:"roomId"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Location string `json:"location,omitempty"`
	Active   bool   `json:"active"`
}

// RoomBooking reserves a room for [StartTime, EndTime).
type RoomBooking struct {
	BookingID    string    `json:"bookingId"`
	RoomID       string    `json:"roomId"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	CreationTime time.Time `json:"creationTime"`
}

// ClaimCategory is an expense category with an optional per-claim cap.
type ClaimCategory struct {
	CategoryID string   `json:"categoryId"`
	Name       string   `json:"name"`
	MaxAmount  *float64 `json:"maxAmount,omitempty"`
	Active     bool     `json:"active"`
}

// Claim is a submitted expense claim.
type Claim struct {
	ClaimID      string    `json:"claimId"`
	UserID       string    `json:"userId"`
	CategoryID   string    `json:"categoryId"`
	Amount       float64   `json:"amount"`
	Description  string    `json:"description"`
	ClaimDate    string    `json:"claimDate"`
	Status       string    `json:"status"`
	CreationTime time.Time `json:"creationTime"`
}

// ListMessagesRequest captures filters used when listing messages.
type ListMessagesRequest struct {
	ConversationID string
	Limit          int
	Before         *time.Time
}
