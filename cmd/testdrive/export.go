package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"testdrive/internal/export"
	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

func newExportCmd() *cobra.Command {
	var from, to, status, resourceID, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write bookings to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := models.BookingFilter{ResourceID: resourceID}
			if status != "" {
				s, err := models.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}
			var err error
			if filter.DateFrom, err = optionalDate(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if filter.DateTo, err = optionalDate(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			list, err := be.store.ListBookings(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if out == "" {
				out = export.GenerateFilename(filter.DateFrom, filter.DateTo)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.WriteBookings(f, list); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			logger.Info().Str("file", out).Int("bookings", len(list)).Msg("Export written")
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&status, "status", "", "only bookings with this status")
	cmd.Flags().StringVar(&resourceID, "resource", "", "only bookings of this vehicle")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default bookings_<from>_<to>.xlsx)")
	return cmd
}

func optionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return schedule.ParseDate(raw)
}
