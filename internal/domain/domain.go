package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store"
)

// Error is a policy or race failure with a message safe to show the user.
// Anything else coming out of a service is an infrastructure error.
type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

func Errorf(format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// AsError extracts a user-facing domain error, if err is one.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

// Services executes confirmed actions and serves domain reads. Writes trust
// the normalized params produced at validation time; only checks that can be
// lost to a race are repeated here.
type Services struct {
	store store.Store
	log   zerolog.Logger
}

func New(s store.Store, log zerolog.Logger) *Services {
	return &Services{store: s, log: log}
}

// ApplyLeave files a leave request and moves the days into the pending
// balance bucket. The balance is re-read so a racing request cannot push the
// pending total past the entitlement.
func (s *Services) ApplyLeave(ctx context.Context, params map[string]interface{}, user model.UserContext) (string, error) {
	typeID := str(params, "leave_type_id")
	startDate := str(params, "start_date")
	days := num(params, "total_days")

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return "", fmt.Errorf("bad start_date %q: %w", startDate, err)
	}
	bal, err := s.store.Leaves().Balance(ctx, user.UserID, typeID, start.Year())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", Errorf("no %d leave balance found for your account", start.Year())
		}
		return "", err
	}
	if days > bal.Remaining() {
		return "", Errorf("only %d day(s) remaining; the request no longer fits", bal.Remaining())
	}

	req, err := s.store.Leaves().CreateRequest(ctx, &model.LeaveRequest{
		UserID:      user.UserID,
		LeaveTypeID: typeID,
		StartDate:   startDate,
		EndDate:     str(params, "end_date"),
		TotalDays:   days,
		Reason:      str(params, "reason"),
		Status:      "pending",
	})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("user_id", user.UserID).Str("leave_id", req.LeaveID).Int("days", days).Msg("leave request filed")
	return req.LeaveID, nil
}

// BookRoom reserves the slot. The store re-checks overlap in the same
// transaction as the insert; losing that race is a domain failure, not an
// infrastructure one.
func (s *Services) BookRoom(ctx context.Context, params map[string]interface{}, user model.UserContext) (string, error) {
	start, err := time.Parse(time.RFC3339, str(params, "start_time"))
	if err != nil {
		return "", fmt.Errorf("bad start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, str(params, "end_time"))
	if err != nil {
		return "", fmt.Errorf("bad end_time: %w", err)
	}
	bk, err := s.store.Bookings().Create(ctx, &model.RoomBooking{
		RoomID:      str(params, "room_id"),
		UserID:      user.UserID,
		Title:       str(params, "title"),
		StartTime:   start,
		EndTime:     end,
		Description: str(params, "description"),
		Status:      "confirmed",
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return "", Errorf("someone booked %s for that slot just now; the room is no longer free", str(params, "room_name"))
		}
		return "", err
	}
	s.log.Info().Str("user_id", user.UserID).Str("booking_id", bk.BookingID).Msg("room booked")
	return bk.BookingID, nil
}

// SubmitClaim records an expense claim.
func (s *Services) SubmitClaim(ctx context.Context, params map[string]interface{}, user model.UserContext) (string, error) {
	cl, err := s.store.Claims().Create(ctx, &model.Claim{
		UserID:      user.UserID,
		CategoryID:  str(params, "category_id"),
		Amount:      fnum(params, "amount"),
		Description: str(params, "description"),
		ClaimDate:   str(params, "claim_date"),
		Status:      "submitted",
	})
	if err != nil {
		return "", err
	}
	s.log.Info().Str("user_id", user.UserID).Str("claim_id", cl.ClaimID).Msg("claim submitted")
	return cl.ClaimID, nil
}

// --- Reads backing the REST endpoints ---

// BalanceView is one leave-type balance with the derived remaining count.
type BalanceView struct {
	LeaveType string `json:"leaveType"`
	Year      int    `json:"year"`
	Total     int    `json:"totalDays"`
	Used      int    `json:"usedDays"`
	Pending   int    `json:"pendingDays"`
	Remaining int    `json:"remainingDays"`
}

// Balances returns the user's current-year balance per active leave type.
// Types without a configured balance row are skipped.
func (s *Services) Balances(ctx context.Context, userID string) ([]BalanceView, error) {
	types, err := s.store.Leaves().Types(ctx)
	if err != nil {
		return nil, err
	}
	year := time.Now().UTC().Year()
	out := make([]BalanceView, 0, len(types))
	for _, lt := range types {
		bal, err := s.store.Leaves().Balance(ctx, userID, lt.LeaveTypeID, year)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, BalanceView{
			LeaveType: lt.Name,
			Year:      bal.Year,
			Total:     bal.TotalDays,
			Used:      bal.UsedDays,
			Pending:   bal.PendingDays,
			Remaining: bal.Remaining(),
		})
	}
	return out, nil
}

// Snapshot renders the user's current records as prompt context so the
// resolver answers data questions from the store instead of guessing.
func (s *Services) Snapshot(ctx context.Context, user model.UserContext) (string, error) {
	var b strings.Builder

	balances, err := s.Balances(ctx, user.UserID)
	if err != nil {
		return "", err
	}
	if len(balances) > 0 {
		b.WriteString("Leave balances:\n")
		for _, bal := range balances {
			fmt.Fprintf(&b, "- %s %d: %d day(s) remaining of %d (%d used, %d pending approval)\n",
				bal.LeaveType, bal.Year, bal.Remaining, bal.Total, bal.Used, bal.Pending)
		}
	}

	rooms, err := s.Rooms(ctx)
	if err != nil {
		return "", err
	}
	if len(rooms) > 0 {
		b.WriteString("Meeting rooms:\n")
		for _, r := range rooms {
			fmt.Fprintf(&b, "- %s (seats %d", r.Name, r.Capacity)
			if r.Location != "" {
				fmt.Fprintf(&b, ", %s", r.Location)
			}
			b.WriteString(")\n")
		}
	}

	cats, err := s.ClaimCategories(ctx)
	if err != nil {
		return "", err
	}
	if len(cats) > 0 {
		b.WriteString("Claim categories:\n")
		for _, c := range cats {
			if c.MaxAmount != nil {
				fmt.Fprintf(&b, "- %s (max %.2f per claim)\n", c.Name, *c.MaxAmount)
			} else {
				fmt.Fprintf(&b, "- %s (no per-claim cap)\n", c.Name)
			}
		}
	}

	bookings, err := s.Bookings(ctx, user.UserID, 5)
	if err != nil {
		return "", err
	}
	if len(bookings) > 0 {
		b.WriteString("Your latest bookings:\n")
		for _, bk := range bookings {
			fmt.Fprintf(&b, "- %q, %s to %s (%s)\n", bk.Title,
				bk.StartTime.Format("2006-01-02 15:04"), bk.EndTime.Format("15:04"), bk.Status)
		}
	}

	claims, err := s.Claims(ctx, user.UserID, 5)
	if err != nil {
		return "", err
	}
	if len(claims) > 0 {
		b.WriteString("Your latest claims:\n")
		for _, cl := range claims {
			fmt.Fprintf(&b, "- %.2f on %s, %q (%s)\n", cl.Amount, cl.ClaimDate, cl.Description, cl.Status)
		}
	}

	return strings.TrimSpace(b.String()), nil
}

func (s *Services) LeaveRequests(ctx context.Context, userID string, limit int) ([]*model.LeaveRequest, error) {
	return s.store.Leaves().ListRequests(ctx, userID, limit)
}

func (s *Services) Rooms(ctx context.Context) ([]*model.Room, error) {
	return s.store.Bookings().Rooms(ctx)
}

func (s *Services) Bookings(ctx context.Context, userID string, limit int) ([]*model.RoomBooking, error) {
	return s.store.Bookings().ListByUser(ctx, userID, limit)
}

func (s *Services) Claims(ctx context.Context, userID string, limit int) ([]*model.Claim, error) {
	return s.store.Claims().ListByUser(ctx, userID, limit)
}

func (s *Services) ClaimCategories(ctx context.Context) ([]*model.ClaimCategory, error) {
	return s.store.Claims().Categories(ctx)
}

func str(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func num(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func fnum(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
