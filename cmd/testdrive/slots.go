package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"testdrive/internal/booking"
	"testdrive/internal/schedule"
	"testdrive/internal/slots"
)

func newSlotsCmd() *cobra.Command {
	var resourceID, date string

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the free slots of a vehicle on a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := schedule.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			be, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			rules, err := bookingRules(cfg)
			if err != nil {
				return err
			}
			sched, err := be.store.LoadSchedule(ctx, cfg.Dealership.ID)
			if err != nil {
				return err
			}
			coordinator := booking.NewCoordinator(be.store, be.store, nil, nil, rules)
			free, err := coordinator.ListAvailableSlots(ctx, resourceID, day, sched)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(free) == 0 {
				fmt.Fprintf(out, "No free slots for %s on %s (%s)\n", resourceID, date, schedule.WeekdayOf(day))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT\tLONGEST")
			for _, s := range free {
				options := slots.DurationOptions(free, s.Start, rules.SlotMinutes)
				fmt.Fprintf(tw, "%s\t%s\n", s.Label(), slots.FormatDuration(options[len(options)-1]))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "vehicle id")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
