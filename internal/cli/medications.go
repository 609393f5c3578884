package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

const dateLayout = "2006-01-02"

var medicationsCmd = &cobra.Command{
	Use:   "medications",
	Short: "Manage medication schedules",
}

var medicationsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a medication for a subject",
	RunE:  runMedicationsAdd,
}

var checkDueCmd = &cobra.Command{
	Use:   "check-due",
	Short: "Send reminders for medication doses due now",
	RunE:  runCheckDue,
}

func init() {
	rootCmd.AddCommand(medicationsCmd)
	rootCmd.AddCommand(checkDueCmd)
	medicationsCmd.AddCommand(medicationsAddCmd)

	medicationsAddCmd.Flags().StringP("subject", "s", "", "Subject id")
	medicationsAddCmd.Flags().String("name", "", "Medication name")
	medicationsAddCmd.Flags().String("dosage", "", "Dosage (e.g., 10mg)")
	medicationsAddCmd.Flags().StringP("frequency", "f", string(model.FrequencyOnceDaily),
		"once_daily, twice_daily, three_times_daily, four_times_daily, weekly or monthly")
	medicationsAddCmd.Flags().String("start", "", "First day, YYYY-MM-DD (default today)")
	medicationsAddCmd.Flags().String("end", "", "Last day, YYYY-MM-DD (default open-ended)")
	_ = medicationsAddCmd.MarkFlagRequired("subject")
	_ = medicationsAddCmd.MarkFlagRequired("name")

	checkDueCmd.Flags().StringP("subject", "s", "", "Subject id")
	checkDueCmd.Flags().String("at", "", "Check time in RFC3339 (default now)")
	_ = checkDueCmd.MarkFlagRequired("subject")
}

func runMedicationsAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	name, _ := cmd.Flags().GetString("name")
	dosage, _ := cmd.Flags().GetString("dosage")
	frequency, _ := cmd.Flags().GetString("frequency")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")

	freq, err := model.ParseFrequency(frequency)
	if err != nil {
		return err
	}

	med := &model.Medication{
		SubjectID: strings.TrimSpace(subject),
		Name:      strings.TrimSpace(name),
		Dosage:    strings.TrimSpace(dosage),
		Frequency: freq,
	}
	if start != "" {
		if med.StartDate, err = time.Parse(dateLayout, start); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if end != "" {
		endDate, err := time.Parse(dateLayout, end)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		if !med.StartDate.IsZero() && endDate.Before(med.StartDate) {
			return fmt.Errorf("--end %s is before --start %s", end, start)
		}
		med.EndDate = &endDate
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.AddMedication(cmd.Context(), med); err != nil {
		return fmt.Errorf("add medication: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Medication %s added (%s, id %s)\n", med.Name, med.Frequency, med.ID)
	return nil
}

func runCheckDue(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	at, _ := cmd.Flags().GetString("at")

	var now time.Time
	if at != "" {
		if now, err = time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	due, err := a.Engine.CheckDue(cmd.Context(), subject, now)
	if err != nil {
		return fmt.Errorf("check due: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(due) == 0 {
		fmt.Fprintln(out, "No doses due.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEDICATION\tDOSAGE\tDUE")
	fmt.Fprintln(w, "----------\t------\t---")
	for _, r := range due {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Medication.Name, dash(r.Medication.Dosage), r.DueAt.Format("15:04"))
	}
	return w.Flush()
}
