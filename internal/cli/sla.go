package cli

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/app"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

func newSLACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "SLA breach scanning and policies",
	}
	cmd.AddCommand(newSLAScanCmd())
	cmd.AddCommand(newSLAScheduleCmd())
	cmd.AddCommand(newSLAPoliciesCmd())
	return cmd
}

func newSLAScanCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one breach scan and print the breach counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := bootstrap(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := application.Scheduler.RunOnce(cmd.Context(), dryRun)
			return writeScanResult(cmd.OutOrStdout(), result, err)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count candidates without marking them")
	return cmd
}

// writeScanResult prints the counters whenever a scan ran, including a
// partial run where one dimension failed, and then returns the error.
func writeScanResult(out io.Writer, result service.ScanResult, err error) error {
	failed := domain.FailedDimensions(err)
	if err != nil && len(failed) == 0 {
		return fmt.Errorf("sla scan: %w", err)
	}
	fmt.Fprintf(out, "first_response_breaches=%d\n", result.FirstResponseBreaches)
	fmt.Fprintf(out, "resolution_breaches=%d\n", result.ResolutionBreaches)
	for _, dim := range failed {
		fmt.Fprintf(out, "failed_dimension=%s\n", dim)
	}
	if err != nil {
		return fmt.Errorf("sla scan: %w", err)
	}
	return nil
}

func newSLAScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the recurring breach scanner in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, cleanup, err := bootstrap(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer cleanup()

			application.Scheduler.Start(ctx)
			<-ctx.Done()
			application.Scheduler.Wait()
			return nil
		},
	}
}

func newSLAPoliciesCmd() *cobra.Command {
	var (
		file string
		sync bool
	)
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List active SLA policies, or sync a YAML seed file into storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cleanup, err := bootstrap(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer cleanup()

			var policies []domain.SLAPolicy
			if sync {
				if file == "" {
					file = application.Config.SLA.PolicyFile
				}
				seeds, err := config.LoadPolicyFile(file)
				if err != nil {
					return err
				}
				if _, err := application.Policies.Sync(cmd.Context(), seeds); err != nil {
					return fmt.Errorf("sync policies: %w", err)
				}
			} else if file != "" {
				return fmt.Errorf("--file requires --sync")
			}

			policies, err = application.Policies.ListActive(cmd.Context(), domain.SystemActor)
			if err != nil {
				return err
			}
			raw, err := config.EncodePolicies(policies)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (defaults to SLA_POLICY_FILE)")
	cmd.Flags().BoolVar(&sync, "sync", false, "upsert the seed file before listing")
	return cmd
}
