package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

// Rules applies business policy to conformed candidates. Validation is
// read-only; nothing is written until the user confirms and the executor
// runs.
type Rules struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewRules(s store.Store, ttl time.Duration) *Rules {
	return &Rules{store: s, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Validate checks a conformed candidate against current data. A policy
// violation returns a user-facing reason and no pending action. A valid
// candidate returns a PendingAction in AWAITING_CONFIRMATION with a fresh
// idempotency key; params are normalized with resolved entity IDs so the
// executor does not repeat name lookups.
func (r *Rules) Validate(ctx context.Context, c *model.CandidateAction, params map[string]interface{}, user model.UserContext) (*model.PendingAction, string, error) {
	var (
		normalized map[string]interface{}
		reason     string
		err        error
	)
	switch c.Type {
	case ActionApplyLeave:
		normalized, reason, err = r.validateLeave(ctx, params, user)
	case ActionBookRoom:
		normalized, reason, err = r.validateBooking(ctx, params, user)
	case ActionSubmitClaim:
		normalized, reason, err = r.validateClaim(ctx, params, user)
	default:
		return nil, "", fmt.Errorf("unknown action type %q: %w", c.Type, model.ErrNotFound)
	}
	if err != nil {
		return nil, "", err
	}
	if reason != "" {
		return nil, reason, nil
	}
	now := r.now()
	return &model.PendingAction{
		CandidateAction: model.CandidateAction{Type: c.Type, Params: normalized, Confidence: c.Confidence},
		IdempotencyKey:  uuid.New().String(),
		State:           model.PendingAwaiting,
		CreationTime:    now,
		ExpiresAt:       now.Add(r.ttl),
	}, "", nil
}

func (r *Rules) validateLeave(ctx context.Context, params map[string]interface{}, user model.UserContext) (map[string]interface{}, string, error) {
	startStr, _ := params["start_date"].(string)
	endStr, _ := params["end_date"].(string)
	start, _ := time.Parse("2006-01-02", startStr)
	end, _ := time.Parse("2006-01-02", endStr)

	today := r.now().Truncate(24 * time.Hour)
	if start.Before(today) {
		return nil, fmt.Sprintf("The start date %s is in the past. When would you like the leave to begin?", startStr), nil
	}
	if end.Before(start) {
		return nil, fmt.Sprintf("The end date %s is before the start date %s.", endStr, startStr), nil
	}
	days := int(end.Sub(start).Hours()/24) + 1

	name, _ := params["leave_type"].(string)
	lt, err := r.store.Leaves().TypeByName(ctx, name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Sprintf("I couldn't find a leave type matching %q. Try one of the configured leave types.", name), nil
		}
		return nil, "", err
	}
	bal, err := r.store.Leaves().Balance(ctx, user.UserID, lt.LeaveTypeID, start.Year())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Sprintf("You don't have a %s balance set up for %d yet. Please check with HR.", lt.Name, start.Year()), nil
		}
		return nil, "", err
	}
	if days > bal.Remaining() {
		return nil, fmt.Sprintf("That's %d day(s), but you only have %d day(s) of %s remaining.", days, bal.Remaining(), lt.Name), nil
	}

	out := map[string]interface{}{
		"leave_type":    lt.Name,
		"leave_type_id": lt.LeaveTypeID,
		"start_date":    startStr,
		"end_date":      endStr,
		"total_days":    days,
	}
	if reason, ok := params["reason"].(string); ok && reason != "" {
		out["reason"] = reason
	}
	return out, "", nil
}

func (r *Rules) validateBooking(ctx context.Context, params map[string]interface{}, user model.UserContext) (map[string]interface{}, string, error) {
	startStr, _ := params["start_time"].(string)
	endStr, _ := params["end_time"].(string)
	start, _ := time.Parse(time.RFC3339, startStr)
	end, _ := time.Parse(time.RFC3339, endStr)

	if !end.After(start) {
		return nil, "The end time must be after the start time.", nil
	}
	if start.Before(r.now()) {
		return nil, "That start time is already in the past. When should the booking begin?", nil
	}

	name, _ := params["room_name"].(string)
	room, err := r.store.Bookings().RoomByName(ctx, name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Sprintf("I couldn't find a room matching %q.", name), nil
		}
		return nil, "", err
	}
	overlaps, err := r.store.Bookings().Overlaps(ctx, room.RoomID, start, end)
	if err != nil {
		return nil, "", err
	}
	if overlaps {
		return nil, fmt.Sprintf("%s is already booked during that slot. Try a different time or room.", room.Name), nil
	}

	out := map[string]interface{}{
		"room_name":  room.Name,
		"room_id":    room.RoomID,
		"title":      params["title"],
		"start_time": startStr,
		"end_time":   endStr,
	}
	if desc, ok := params["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	return out, "", nil
}

func (r *Rules) validateClaim(ctx context.Context, params map[string]interface{}, user model.UserContext) (map[string]interface{}, string, error) {
	amount, _ := params["amount"].(float64)
	if amount <= 0 {
		return nil, "The claim amount must be greater than zero.", nil
	}

	name, _ := params["category"].(string)
	cat, err := r.store.Claims().CategoryByName(ctx, name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Sprintf("I couldn't find a claim category matching %q.", name), nil
		}
		return nil, "", err
	}
	if cat.MaxAmount != nil && amount > *cat.MaxAmount {
		return nil, fmt.Sprintf("%.2f exceeds the %s limit of %.2f per claim.", amount, cat.Name, *cat.MaxAmount), nil
	}

	claimDate, _ := params["claim_date"].(string)
	if claimDate == "" {
		claimDate = r.now().Format("2006-01-02")
	}
	out := map[string]interface{}{
		"category":    cat.Name,
		"category_id": cat.CategoryID,
		"amount":      amount,
		"description": params["description"],
		"claim_date":  claimDate,
	}
	return out, "", nil
}
