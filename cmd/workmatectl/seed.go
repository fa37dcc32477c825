package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/workmate-hq/workmate/internal/config"
	"github.com/workmate-hq/workmate/internal/model"
	"github.com/workmate-hq/workmate/internal/platform/factory"
	"github.com/workmate-hq/workmate/internal/store"
)

func newSeedCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed reference data (leave types, rooms, claim categories) into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			ctx := context.Background()
			st, err := factory.NewStore(ctx, cfg)
			if err != nil {
				return err
			}
			return runSeed(ctx, st, userID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "workmate-dev", "User to provision leave balances for")
	return cmd
}

func runSeed(ctx context.Context, st store.Store, userID string, out io.Writer) error {
	leaveTypes := []*model.LeaveType{
		{Name: "Annual Leave", DefaultDays: 14},
		{Name: "Medical Leave", DefaultDays: 10},
		{Name: "Unpaid Leave", DefaultDays: 30},
	}
	rooms := []*model.Room{
		{Name: "Mercury", Capacity: 4, Location: "Level 3"},
		{Name: "Venus", Capacity: 8, Location: "Level 3"},
		{Name: "Jupiter", Capacity: 16, Location: "Level 5"},
	}
	meals, travel := 150.0, 500.0
	categories := []*model.ClaimCategory{
		{Name: "Meals", MaxAmount: &meals},
		{Name: "Travel", MaxAmount: &travel},
		{Name: "Office Supplies"},
	}

	year := time.Now().UTC().Year()
	for _, lt := range leaveTypes {
		created, err := st.Leaves().CreateType(ctx, lt)
		if err != nil {
			if errors.Is(err, model.ErrConflict) {
				fmt.Fprintf(out, "leave type %q already exists\n", lt.Name)
				existing, lookupErr := st.Leaves().TypeByName(ctx, lt.Name)
				if lookupErr != nil {
					return lookupErr
				}
				created = existing
			} else {
				return err
			}
		} else {
			fmt.Fprintf(out, "created leave type %q (%d days)\n", created.Name, created.DefaultDays)
		}
		if userID != "" {
			err := st.Leaves().SetBalance(ctx, &model.LeaveBalance{
				UserID:      userID,
				LeaveTypeID: created.LeaveTypeID,
				Year:        year,
				TotalDays:   created.DefaultDays,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "set %d balance for %s: %s = %d days\n", year, userID, created.Name, created.DefaultDays)
		}
	}

	for _, room := range rooms {
		if _, err := st.Bookings().CreateRoom(ctx, room); err != nil {
			if errors.Is(err, model.ErrConflict) {
				fmt.Fprintf(out, "room %q already exists\n", room.Name)
				continue
			}
			return err
		}
		fmt.Fprintf(out, "created room %q (capacity %d)\n", room.Name, room.Capacity)
	}

	for _, cat := range categories {
		if _, err := st.Claims().CreateCategory(ctx, cat); err != nil {
			if errors.Is(err, model.ErrConflict) {
				fmt.Fprintf(out, "claim category %q already exists\n", cat.Name)
				continue
			}
			return err
		}
		fmt.Fprintf(out, "created claim category %q\n", cat.Name)
	}

	return nil
}
