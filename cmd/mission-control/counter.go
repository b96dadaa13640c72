package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ctavolazzi/mission-control/pkg/config"
	"github.com/ctavolazzi/mission-control/pkg/counter"
	"github.com/ctavolazzi/mission-control/pkg/log"
)

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Inspect and reconcile the ID counters",
	Long: `Offline counter administration against the same state file the server
uses: inspect values and audit history, validate against the filesystem,
preview and apply migrations.`,
}

// counterSetup opens the counter service and a migrator over the configured
// repos, shared by every subcommand.
func counterSetup(cmd *cobra.Command) (*counter.Service, *counter.Migrator, error) {
	log.Init(log.Config{Level: log.WarnLevel})

	cfgPath, _ := cmd.Flags().GetString("config")
	counterFile, _ := cmd.Flags().GetString("counter-file")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %v", err)
	}
	svc, err := counter.NewService(counterFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open counter state: %v", err)
	}

	targets := make([]counter.ScanTarget, 0, len(cfg.Repos))
	for _, rc := range cfg.Repos {
		targets = append(targets, counter.ScanTarget{Name: rc.Name, Path: rc.Path})
	}
	return svc, counter.NewMigrator(svc, targets), nil
}

func newTable(header table.Row) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(header)
	return tbl
}

var counterStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show current counter values",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := counterSetup(cmd)
		if err != nil {
			return err
		}

		stats := svc.GetStatistics()
		counters := svc.GetCurrentCounters()

		tbl := newTable(table.Row{"Counter", "Value"})
		tbl.AppendRows([]table.Row{
			{"workEfforts.global", counters.WorkEfforts.Global},
			{"tickets.global", counters.Tickets.Global},
			{"checkpoints.global", counters.Checkpoints.Global},
		})
		for repo, n := range counters.WorkEfforts.ByRepo {
			tbl.AppendRow(table.Row{"workEfforts.byRepo." + repo, n})
		}
		for we, n := range counters.Tickets.ByWorkEffort {
			tbl.AppendRow(table.Row{"tickets.byWorkEffort." + we, n})
		}
		for repo, n := range counters.Tickets.ByRepo {
			tbl.AppendRow(table.Row{"tickets.byRepo." + repo, n})
		}
		tbl.AppendFooter(table.Row{"validation", stats.ValidationStatus})
		tbl.Render()
		return nil
	},
}

var counterAuditCmd = &cobra.Command{
	Use:   "audit [limit]",
	Short: "Show the most recent audit entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := counterSetup(cmd)
		if err != nil {
			return err
		}

		limit := 25
		if len(args) == 1 {
			limit, err = strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid limit: %s", args[0])
			}
		}

		tbl := newTable(table.Row{"Timestamp", "Action", "Counter", "Value", "Reason"})
		for _, entry := range svc.GetAuditLog(limit) {
			value := fmt.Sprintf("%d", entry.Value)
			if entry.Action == "set" && entry.OldValue != nil && entry.NewValue != nil {
				value = fmt.Sprintf("%d -> %d", *entry.OldValue, *entry.NewValue)
			}
			tbl.AppendRow(table.Row{
				entry.Timestamp.Format("2006-01-02 15:04:05"),
				entry.Action,
				entry.Counter,
				value,
				entry.Reason,
			})
		}
		tbl.Render()
		return nil
	},
}

var counterValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check counters against the filesystem",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, migrator, err := counterSetup(cmd)
		if err != nil {
			return err
		}

		result, err := counter.NewValidator(svc, migrator).Validate()
		if err != nil {
			return err
		}

		tbl := newTable(table.Row{"Check", "Result", "Detail"})
		for _, check := range result.Checks {
			status := "PASS"
			if !check.Passed {
				status = "FAIL"
			}
			tbl.AppendRow(table.Row{check.Name, status, check.Message})
		}
		tbl.AppendFooter(table.Row{"Status", result.Status, ""})
		tbl.Render()

		if result.Status != "valid" {
			fmt.Println()
			for _, s := range result.Suggestions {
				fmt.Printf("  suggestion: [%s] %s\n", s.Action, s.Message)
			}
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

var counterPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the overrides a migration would apply",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, migrator, err := counterSetup(cmd)
		if err != nil {
			return err
		}

		ops, err := migrator.Preview()
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("Counters already match the filesystem.")
			return nil
		}

		tbl := newTable(table.Row{"Counter", "Current", "Proposed"})
		for _, op := range ops {
			tbl.AppendRow(table.Row{op.Counter, op.Current, op.Proposed})
		}
		tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d overrides", len(ops)), "", ""})
		tbl.Render()
		return nil
	},
}

var counterMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Reconcile counters with the filesystem",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, migrator, err := counterSetup(cmd)
		if err != nil {
			return err
		}

		ops, err := migrator.Migrate()
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("Counters already match the filesystem.")
			return nil
		}

		tbl := newTable(table.Row{"Counter", "Old", "New"})
		for _, op := range ops {
			tbl.AppendRow(table.Row{op.Counter, op.Current, op.Proposed})
		}
		tbl.Render()
		fmt.Printf("Applied %d overrides.\n", len(ops))
		return nil
	},
}

func init() {
	counterCmd.PersistentFlags().String("config", "config.json", "Path to the configuration file")
	counterCmd.PersistentFlags().String("counter-file", "counter-state.json", "Path to the counter state file")

	counterCmd.AddCommand(counterStatsCmd)
	counterCmd.AddCommand(counterAuditCmd)
	counterCmd.AddCommand(counterValidateCmd)
	counterCmd.AddCommand(counterPreviewCmd)
	counterCmd.AddCommand(counterMigrateCmd)
}
