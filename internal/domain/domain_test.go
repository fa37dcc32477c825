package domain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/store/sqlite"
)

func TestSnapshotRendersUserRecords(t *testing.T) {
	db, err := sqlite.Open(t.TempDir() + "/domain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)

	ctx := context.Background()
	user := model.UserContext{UserID: "u-" + uuid.New().String(), DisplayName: "Pat"}

	lt, err := st.Leaves().CreateType(ctx, &model.LeaveType{Name: "Annual Leave", DefaultDays: 14})
	require.NoError(t, err)
	require.NoError(t, st.Leaves().SetBalance(ctx, &model.LeaveBalance{
		UserID: user.UserID, LeaveTypeID: lt.LeaveTypeID,
		Year: time.Now().UTC().Year(), TotalDays: 14, UsedDays: 2, PendingDays: 1,
	}))

	room, err := st.Bookings().CreateRoom(ctx, &model.Room{Name: "Mercury", Capacity: 8, Location: "Level 3"})
	require.NoError(t, err)

	cap := 150.0
	cat, err := st.Claims().CreateCategory(ctx, &model.ClaimCategory{Name: "Meals", MaxAmount: &cap})
	require.NoError(t, err)

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	_, err = st.Bookings().Create(ctx, &model.RoomBooking{
		RoomID: room.RoomID, UserID: user.UserID, Title: "Sprint review",
		StartTime: start, EndTime: start.Add(time.Hour), Status: "confirmed",
	})
	require.NoError(t, err)

	_, err = st.Claims().Create(ctx, &model.Claim{
		UserID: user.UserID, CategoryID: cat.CategoryID, Amount: 42.50,
		Description: "team lunch", ClaimDate: time.Now().UTC().Format("2006-01-02"),
		Status: "submitted",
	})
	require.NoError(t, err)

	snap, err := New(st, zerolog.Nop()).Snapshot(ctx, user)
	require.NoError(t, err)

	assert.Contains(t, snap, "Leave balances:")
	assert.Contains(t, snap, "Annual Leave")
	assert.Contains(t, snap, "11 day(s) remaining of 14")
	assert.Contains(t, snap, "Mercury (seats 8, Level 3)")
	assert.Contains(t, snap, "Meals (max 150.00 per claim)")
	assert.Contains(t, snap, "Sprint review")
	assert.Contains(t, snap, "team lunch")
}

func TestSnapshotEmptyForNewUser(t *testing.T) {
	db, err := sqlite.Open(t.TempDir() + "/domain.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := sqlite.New(db)

	user := model.UserContext{UserID: "u-" + uuid.New().String(), DisplayName: "Sam"}
	snap, err := New(st, zerolog.Nop()).Snapshot(context.Background(), user)
	require.NoError(t, err)
	assert.NotContains(t, snap, "Leave balances:")
	assert.NotContains(t, snap, "Your latest bookings:")
}
