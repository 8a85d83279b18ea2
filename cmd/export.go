package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
	"laptop-lending/internal/lending/interfaces/export"
)

var (
	exportOut    string
	exportStatus string
	exportTier   string
)

var exportCmd = &cobra.Command{
	Use:       "export [reservations-pdf|reservations-xlsx|inventory-xlsx|labels-pdf]",
	Short:     "Write a lending report from the database",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"reservations-pdf", "reservations-xlsx", "inventory-xlsx", "labels-pdf"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("export needs DATABASE_URL or PG_DSN")
		}
		ctx := cmd.Context()
		be, err := openBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer be.Close()

		coordinator, err := lendingapp.NewCoordinator(be.store, lendingapp.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := coordinator.Load(ctx); err != nil {
			return err
		}
		data, err := buildExport(ctx, args[0], coordinator, be.store)
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = defaultExportName(args[0])
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		logger.WithField("file", out).WithField("bytes", len(data)).Info("export written")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default derived from the report name)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Reservation status filter (active, completed, cancelled)")
	exportCmd.Flags().StringVar(&exportTier, "tier", "", "Device tier filter for labels (HIGH, LOW)")
}

func buildExport(ctx context.Context, report string, coordinator *lendingapp.Coordinator, store lending.Store) ([]byte, error) {
	devices := coordinator.Devices(lendingapp.DeviceFilter{})
	switch report {
	case "reservations-pdf", "reservations-xlsx":
		var status lending.ReservationStatus
		if exportStatus != "" {
			parsed, err := lending.ParseReservationStatus(exportStatus)
			if err != nil {
				return nil, err
			}
			status = parsed
		}
		reservations := coordinator.Reservations(status)
		if lister, ok := store.(lending.ReservationLister); ok {
			history, err := lister.ListReservations(ctx, status)
			if err != nil {
				return nil, err
			}
			reservations = history
		}
		lookup := export.NewLookup(devices, coordinator.Requesters(""))
		if report == "reservations-pdf" {
			return export.BuildReservationsPDF(reservations, lookup, time.Now().UTC())
		}
		return export.BuildReservationsXLSX(reservations, lookup)
	case "inventory-xlsx":
		return export.BuildInventoryXLSX(devices, coordinator.Stats())
	case "labels-pdf":
		var filter lendingapp.DeviceFilter
		if exportTier != "" {
			tier, err := lending.ParseTier(exportTier)
			if err != nil {
				return nil, err
			}
			filter.Tier = tier
		}
		return export.BuildLabelsPDF(coordinator.Devices(filter), export.DefaultLabelConfig())
	default:
		return nil, fmt.Errorf("unknown report %q", report)
	}
}

func defaultExportName(report string) string {
	switch report {
	case "reservations-pdf":
		return "reservations.pdf"
	case "reservations-xlsx":
		return "reservations.xlsx"
	case "inventory-xlsx":
		return "inventory.xlsx"
	default:
		return "labels.pdf"
	}
}
