package commands

import (
	"context"
	"fmt"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/internal/registry"
	"github.com/spf13/cobra"
)

var reconcileAssumeYes bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-now",
	Short: "Run one Cleanup Reconciler cycle and exit",
	Long: `Run the five cleanup passes (soft-deleted file GC, corrupted-record
audit, bad-status aging, orphaned temp files, old thumbnails) once, without
waiting for the cron schedule, and exit. This permanently deletes blobs and
database rows, so it asks for interactive confirmation unless --yes is set.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVarP(&reconcileAssumeYes, "yes", "y", false, "skip the confirmation prompt")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if !reconcileAssumeYes && !confirmDestructiveAction("This will permanently delete soft-deleted blobs and stale records. Continue") {
		fmt.Println("aborted")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	reg, err := registry.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("registry close error", "error", err)
		}
	}()

	if err := reg.Reconciler.RunOnce(ctx); err != nil {
		return fmt.Errorf("reconciler cycle failed: %w", err)
	}

	fmt.Println("reconciliation complete")
	return nil
}
