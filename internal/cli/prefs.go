package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage a subject's notification preferences",
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace notification preferences",
	Long: `Set where warning and critical notifications are sent to the subject.
Quiet hours are HH:MM and may wrap midnight; outside emergencies, no email or
SMS is sent to the subject during them.`,
	RunE: runPrefsSet,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsSetCmd)

	prefsSetCmd.Flags().StringP("subject", "s", "", "Subject id")
	prefsSetCmd.Flags().String("email", "", "Email address")
	prefsSetCmd.Flags().String("phone", "", "Phone number for SMS")
	prefsSetCmd.Flags().Bool("email-enabled", true, "Send email notifications")
	prefsSetCmd.Flags().Bool("sms-enabled", false, "Send SMS notifications")
	prefsSetCmd.Flags().String("quiet-start", "", "Quiet hours start (HH:MM)")
	prefsSetCmd.Flags().String("quiet-end", "", "Quiet hours end (HH:MM)")
	_ = prefsSetCmd.MarkFlagRequired("subject")
}

func runPrefsSet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	email, _ := cmd.Flags().GetString("email")
	phone, _ := cmd.Flags().GetString("phone")
	emailEnabled, _ := cmd.Flags().GetBool("email-enabled")
	smsEnabled, _ := cmd.Flags().GetBool("sms-enabled")
	quietStart, _ := cmd.Flags().GetString("quiet-start")
	quietEnd, _ := cmd.Flags().GetString("quiet-end")

	pref := &model.NotificationPreference{
		SubjectID:    strings.TrimSpace(subject),
		Email:        strings.TrimSpace(email),
		Phone:        strings.TrimSpace(phone),
		EmailEnabled: emailEnabled,
		SMSEnabled:   smsEnabled,
		QuietHours:   model.QuietHours{Start: quietStart, End: quietEnd},
	}
	if (quietStart == "") != (quietEnd == "") {
		return fmt.Errorf("quiet hours need both --quiet-start and --quiet-end")
	}
	if err := pref.QuietHours.Validate(); err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetPreferences(cmd.Context(), pref); err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Preferences saved for %s\n", pref.SubjectID)
	return nil
}
