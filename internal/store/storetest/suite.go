package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	userID := "u-" + uuid.New().String()

	// Conversations
	cv, err := s.Conversations().Create(ctx, &model.Conversation{UserID: userID, Title: "leave chat"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if cv.ConversationID == "" || cv.CreationTime.IsZero() {
		t.Fatalf("CreateConversation: incomplete row %+v", cv)
	}
	if got, err := s.Conversations().Get(ctx, cv.ConversationID); err != nil || got.Title != "leave chat" {
		t.Fatalf("GetConversation: got=%v err=%v", got, err)
	}
	if lst, err := s.Conversations().List(ctx, userID); err != nil || len(lst) != 1 {
		t.Fatalf("ListConversations: n=%d err=%v", len(lst), err)
	}
	if _, err := s.Conversations().Get(ctx, uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetConversation missing: err=%v", err)
	}

	// Pending action round-trip
	pending := &model.PendingAction{
		CandidateAction: model.CandidateAction{
			Type:       "apply_leave",
			Params:     map[string]interface{}{"leave_type": "Annual", "start_date": "2026-09-07"},
			Confidence: 0.93,
		},
		IdempotencyKey: uuid.New().String(),
		State:          model.PendingAwaiting,
		CreationTime:   time.Now().UTC().Truncate(time.Second),
		ExpiresAt:      time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second),
	}
	if err := s.Conversations().SetPending(ctx, cv.ConversationID, pending); err != nil {
		t.Fatalf("SetPending: %v", err)
	}
	got, err := s.Conversations().Get(ctx, cv.ConversationID)
	if err != nil || got.Pending == nil {
		t.Fatalf("Get after SetPending: got=%v err=%v", got, err)
	}
	if got.Pending.IdempotencyKey != pending.IdempotencyKey || got.Pending.Type != "apply_leave" || got.Pending.State != model.PendingAwaiting {
		t.Fatalf("pending round-trip mismatch: %+v", got.Pending)
	}
	if err := s.Conversations().SetPending(ctx, cv.ConversationID, nil); err != nil {
		t.Fatalf("SetPending clear: %v", err)
	}
	if got, err := s.Conversations().Get(ctx, cv.ConversationID); err != nil || got.Pending != nil {
		t.Fatalf("pending should be cleared: got=%+v err=%v", got.Pending, err)
	}
	if err := s.Conversations().SetPending(ctx, uuid.New().String(), pending); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("SetPending missing conversation: err=%v", err)
	}

	// Messages preserve insertion order
	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.Messages().Append(ctx, &model.Message{ConversationID: cv.ConversationID, Role: model.RoleUser, Content: content}); err != nil {
			t.Fatalf("AppendMessage %q: %v", content, err)
		}
	}
	msgs, err := s.Messages().List(ctx, model.ListMessagesRequest{ConversationID: cv.ConversationID})
	if err != nil || len(msgs) != 3 {
		t.Fatalf("ListMessages: n=%d err=%v", len(msgs), err)
	}
	if msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Fatalf("ListMessages order: %q..%q", msgs[0].Content, msgs[2].Content)
	}
	// Limit keeps the newest messages, still oldest-first
	if tail, err := s.Messages().List(ctx, model.ListMessagesRequest{ConversationID: cv.ConversationID, Limit: 2}); err != nil || len(tail) != 2 || tail[0].Content != "two" {
		t.Fatalf("ListMessages limit: %+v err=%v", tail, err)
	}

	// Execution records: unique key enforced
	key := uuid.New().String()
	rec, err := s.Executions().Create(ctx, &model.ExecutionRecord{
		ConversationID: cv.ConversationID,
		UserID:         userID,
		IdempotencyKey: key,
		ActionType:     "apply_leave",
		Outcome:        model.OutcomeSucceeded,
		EntityID:       uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if _, err := s.Executions().Create(ctx, &model.ExecutionRecord{
		ConversationID: cv.ConversationID,
		UserID:         userID,
		IdempotencyKey: key,
		ActionType:     "apply_leave",
		Outcome:        model.OutcomeSucceeded,
	}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate idempotency key: err=%v", err)
	}
	if got, err := s.Executions().GetByKey(ctx, key); err != nil || got.RecordID != rec.RecordID {
		t.Fatalf("GetByKey: got=%v err=%v", got, err)
	}
	if _, err := s.Executions().GetByKey(ctx, uuid.New().String()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetByKey missing: err=%v", err)
	}

	// Leaves
	lt, err := s.Leaves().CreateType(ctx, &model.LeaveType{Name: "Annual Leave", DefaultDays: 14})
	if err != nil {
		t.Fatalf("CreateLeaveType: %v", err)
	}
	if got, err := s.Leaves().TypeByName(ctx, "annual"); err != nil || got.LeaveTypeID != lt.LeaveTypeID {
		t.Fatalf("TypeByName: got=%v err=%v", got, err)
	}
	year := time.Now().UTC().Year()
	if err := s.Leaves().SetBalance(ctx, &model.LeaveBalance{UserID: userID, LeaveTypeID: lt.LeaveTypeID, Year: year, TotalDays: 14}); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	req, err := s.Leaves().CreateRequest(ctx, &model.LeaveRequest{
		UserID:      userID,
		LeaveTypeID: lt.LeaveTypeID,
		StartDate:   fmt.Sprintf("%d-09-07", year),
		EndDate:     fmt.Sprintf("%d-09-09", year),
		TotalDays:   3,
		Reason:      "family trip",
		Status:      "pending",
	})
	if err != nil || req.LeaveID == "" {
		t.Fatalf("CreateLeaveRequest: got=%v err=%v", req, err)
	}
	bal, err := s.Leaves().Balance(ctx, userID, lt.LeaveTypeID, year)
	if err != nil || bal.PendingDays != 3 || bal.Remaining() != 11 {
		t.Fatalf("Balance after request: got=%+v err=%v", bal, err)
	}
	if lst, err := s.Leaves().ListRequests(ctx, userID, 0); err != nil || len(lst) != 1 {
		t.Fatalf("ListRequests: n=%d err=%v", len(lst), err)
	}

	// A request starting next year debits next year's balance row, not the
	// current year's.
	nextYear := year + 1
	if err := s.Leaves().SetBalance(ctx, &model.LeaveBalance{UserID: userID, LeaveTypeID: lt.LeaveTypeID, Year: nextYear, TotalDays: 5}); err != nil {
		t.Fatalf("SetBalance next year: %v", err)
	}
	if _, err := s.Leaves().CreateRequest(ctx, &model.LeaveRequest{
		UserID:      userID,
		LeaveTypeID: lt.LeaveTypeID,
		StartDate:   fmt.Sprintf("%d-01-05", nextYear),
		EndDate:     fmt.Sprintf("%d-01-07", nextYear),
		TotalDays:   3,
		Status:      "pending",
	}); err != nil {
		t.Fatalf("CreateLeaveRequest next year: %v", err)
	}
	if got, err := s.Leaves().Balance(ctx, userID, lt.LeaveTypeID, nextYear); err != nil || got.PendingDays != 3 {
		t.Fatalf("next-year balance after request: got=%+v err=%v", got, err)
	}
	if got, err := s.Leaves().Balance(ctx, userID, lt.LeaveTypeID, year); err != nil || got.PendingDays != 3 {
		t.Fatalf("current-year balance should be untouched: got=%+v err=%v", got, err)
	}
	// No balance row for the start year fails the request outright.
	if _, err := s.Leaves().CreateRequest(ctx, &model.LeaveRequest{
		UserID:      userID,
		LeaveTypeID: lt.LeaveTypeID,
		StartDate:   fmt.Sprintf("%d-01-05", year+2),
		EndDate:     fmt.Sprintf("%d-01-05", year+2),
		TotalDays:   1,
		Status:      "pending",
	}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("request without a balance row: err=%v", err)
	}

	// Rooms and bookings: overlap detection on [start, end)
	room, err := s.Bookings().CreateRoom(ctx, &model.Room{Name: "Mercury", Capacity: 8, Location: "L3"})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if got, err := s.Bookings().RoomByName(ctx, "mercury"); err != nil || got.RoomID != room.RoomID {
		t.Fatalf("RoomByName: got=%v err=%v", got, err)
	}
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	bk, err := s.Bookings().Create(ctx, &model.RoomBooking{
		RoomID:    room.RoomID,
		UserID:    userID,
		Title:     "standup",
		StartTime: start,
		EndTime:   end,
		Status:    "confirmed",
	})
	if err != nil || bk.BookingID == "" {
		t.Fatalf("CreateBooking: got=%v err=%v", bk, err)
	}
	if ov, err := s.Bookings().Overlaps(ctx, room.RoomID, start.Add(30*time.Minute), end.Add(30*time.Minute)); err != nil || !ov {
		t.Fatalf("Overlaps intersecting: ov=%v err=%v", ov, err)
	}
	// Back-to-back bookings do not overlap
	if ov, err := s.Bookings().Overlaps(ctx, room.RoomID, end, end.Add(time.Hour)); err != nil || ov {
		t.Fatalf("Overlaps adjacent: ov=%v err=%v", ov, err)
	}
	if _, err := s.Bookings().Create(ctx, &model.RoomBooking{
		RoomID:    room.RoomID,
		UserID:    userID,
		Title:     "clash",
		StartTime: start.Add(15 * time.Minute),
		EndTime:   end.Add(15 * time.Minute),
		Status:    "confirmed",
	}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("overlapping booking should conflict: err=%v", err)
	}
	if lst, err := s.Bookings().ListByUser(ctx, userID, 0); err != nil || len(lst) != 1 {
		t.Fatalf("ListByUser bookings: n=%d err=%v", len(lst), err)
	}

	// Claims
	cap := 200.0
	cat, err := s.Claims().CreateCategory(ctx, &model.ClaimCategory{Name: "Meals", MaxAmount: &cap})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if got, err := s.Claims().CategoryByName(ctx, "meal"); err != nil || got.CategoryID != cat.CategoryID || got.MaxAmount == nil || *got.MaxAmount != 200 {
		t.Fatalf("CategoryByName: got=%+v err=%v", got, err)
	}
	cl, err := s.Claims().Create(ctx, &model.Claim{
		UserID:      userID,
		CategoryID:  cat.CategoryID,
		Amount:      42.50,
		Description: "team lunch",
		ClaimDate:   "2026-08-31",
		Status:      "submitted",
	})
	if err != nil || cl.ClaimID == "" {
		t.Fatalf("CreateClaim: got=%v err=%v", cl, err)
	}
	if lst, err := s.Claims().ListByUser(ctx, userID, 0); err != nil || len(lst) != 1 || lst[0].Amount != 42.50 {
		t.Fatalf("ListByUser claims: %+v err=%v", lst, err)
	}

	// Archive
	if err := s.Conversations().Archive(ctx, cv.ConversationID); err != nil {
		t.Fatalf("ArchiveConversation: %v", err)
	}
	if got, err := s.Conversations().Get(ctx, cv.ConversationID); err != nil || !got.Archived {
		t.Fatalf("conversation should be archived: got=%+v err=%v", got, err)
	}
}
