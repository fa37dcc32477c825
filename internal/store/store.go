package store

import (
	"context"
	"time"

	"github.com/workmate-hq/workmate/internal/model"
)

// Store exposes persistence operations required by the engine and services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Conversations() Conversations
	Messages() Messages
	Executions() Executions
	Leaves() Leaves
	Bookings() Bookings
	Claims() Claims
}

type Conversations interface {
	Create(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	List(ctx context.Context, userID string) ([]*model.Conversation, error)
	// SetPending replaces the conversation's pending-action field; nil clears it.
	SetPending(ctx context.Context, conversationID string, p *model.PendingAction) error
	Archive(ctx context.Context, conversationID string) error
}

type Messages interface {
	Append(ctx context.Context, m *model.Message) (*model.Message, error)
	// List returns messages in insertion order (oldest first).
	List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error)
}

type Executions interface {
	// Create inserts a record. A duplicate idempotency key returns
	// model.ErrConflict; callers resolve it by fetching the existing record.
	Create(ctx context.Context, r *model.ExecutionRecord) (*model.ExecutionRecord, error)
	GetByKey(ctx context.Context, idempotencyKey string) (*model.ExecutionRecord, error)
}

type Leaves interface {
	Types(ctx context.Context) ([]*model.LeaveType, error)
	TypeByName(ctx context.Context, name string) (*model.LeaveType, error)
	CreateType(ctx context.Context, t *model.LeaveType) (*model.LeaveType, error)
	Balance(ctx context.Context, userID, leaveTypeID string, year int) (*model.LeaveBalance, error)
	SetBalance(ctx context.Context, b *model.LeaveBalance) error
	// CreateRequest inserts the request and moves the requested days into the
	// balance's pending bucket in one transaction.
	CreateRequest(ctx context.Context, r *model.LeaveRequest) (*model.LeaveRequest, error)
	ListRequests(ctx context.Context, userID string, limit int) ([]*model.LeaveRequest, error)
}

type Bookings interface {
	Rooms(ctx context.Context) ([]*model.Room, error)
	RoomByName(ctx context.Context, name string) (*model.Room, error)
	CreateRoom(ctx context.Context, r *model.Room) (*model.Room, error)
	// Overlaps reports whether a confirmed booking intersects [start, end).
	Overlaps(ctx context.Context, roomID string, start, end time.Time) (bool, error)
	// Create re-checks overlap transactionally; a lost race returns model.ErrConflict.
	Create(ctx context.Context, b *model.RoomBooking) (*model.RoomBooking, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.RoomBooking, error)
}

type Claims interface {
	Categories(ctx context.Context) ([]*model.ClaimCategory, error)
	CategoryByName(ctx context.Context, name string) (*model.ClaimCategory, error)
	CreateCategory(ctx context.Context, c *model.ClaimCategory) (*model.ClaimCategory, error)
	Create(ctx context.Context, c *model.Claim) (*model.Claim, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Claim, error)
}
