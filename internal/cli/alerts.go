package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/vitalwatch/pkg/alerts"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect recorded alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE:  runAlertsList,
}

var ackCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAck,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(ackCmd)
	alertsCmd.AddCommand(alertsListCmd)

	alertsListCmd.Flags().StringP("subject", "s", "", "Filter by subject")
	alertsListCmd.Flags().Bool("open", false, "Only unacknowledged alerts")
	alertsListCmd.Flags().String("min-severity", "", "Minimum severity (info, warning, critical)")
	alertsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of alerts")

	ackCmd.Flags().String("actor", "", "Who acknowledged the alert (default $USER)")
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	open, _ := cmd.Flags().GetBool("open")
	minSeverity, _ := cmd.Flags().GetString("min-severity")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := model.AlertFilter{SubjectID: subject, OpenOnly: open, Limit: limit}
	if minSeverity != "" {
		sev, err := model.ParseSeverity(minSeverity)
		if err != nil {
			return err
		}
		filter.MinSeverity = sev
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListAlerts(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tSEVERITY\tKIND\tMETRIC\tCREATED\tACK")
	fmt.Fprintln(w, "--\t-------\t--------\t----\t------\t-------\t---")
	for _, r := range recs {
		ack := "-"
		if r.Acknowledged {
			ack = r.AcknowledgedBy
			if ack == "" {
				ack = "yes"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.SubjectID, r.Severity, r.Kind, r.Metric,
			r.CreatedAt.Format("2006-01-02 15:04:05"), ack)
	}
	return w.Flush()
}

func runAck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		actor = os.Getenv("USER")
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	lc := alerts.NewLifecycle(store, cfg.Alerts.DedupeBucket, newLogger(cfg))
	ok, err := lc.Acknowledge(cmd.Context(), args[0], actor)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if !ok {
		return fmt.Errorf("alert %s not found", args[0])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Alert %s acknowledged\n", args[0])
	return nil
}
