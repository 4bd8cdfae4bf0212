package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/drill"
)

func drillCmd() *cobra.Command {
	var (
		names   []string
		tenants int
		rooms   int
	)
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Run consistency drills against the configured database",
		Long: "Seeds throwaway accounts and listings, drives the booking engine under\n" +
			"concurrency or faults and checks room inventory stays consistent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenants < 1 || rooms < 1 {
				return fmt.Errorf("--tenants and --rooms must be positive")
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			builtin := drill.Builtin(drill.Env{
				DB:         a.db,
				Users:      a.users,
				Properties: a.properties,
				NewBookings: func(n booking.Notifier) booking.Service {
					return a.bookings(n, nil)
				},
				Logger: a.logger,
			}, tenants, rooms)

			if len(names) == 0 {
				for name := range builtin {
					names = append(names, name)
				}
				sort.Strings(names)
			}
			engine := drill.NewEngine(a.logger)
			for _, name := range names {
				exp, ok := builtin[name]
				if !ok {
					return fmt.Errorf("unknown experiment %q", name)
				}
				engine.Register(exp)
			}

			held, err := engine.RunAll(cmd.Context())
			if err != nil {
				return err
			}
			if !held {
				var failed []string
				for _, r := range engine.Results() {
					if !r.HypothesisHeld {
						failed = append(failed, r.Experiment)
					}
				}
				return fmt.Errorf("drill failed: %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&names, "experiment", nil, "experiments to run (default all)")
	cmd.Flags().IntVar(&tenants, "tenants", 20, "concurrent tenants in the booking race")
	cmd.Flags().IntVar(&rooms, "rooms", 5, "rooms in each seeded listing")
	return cmd
}
