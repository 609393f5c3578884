package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sosCmd = &cobra.Command{
	Use:   "sos",
	Short: "Escalate to every emergency contact now",
	Long: `Raise a critical SOS alert for a subject and notify all of their emergency
contacts with an optional message and the latest recorded vital signs.`,
	RunE: runSOS,
}

func init() {
	rootCmd.AddCommand(sosCmd)
	sosCmd.Flags().StringP("subject", "s", "", "Subject id")
	sosCmd.Flags().StringP("message", "m", "", "Message for the emergency contacts")
	_ = sosCmd.MarkFlagRequired("subject")
}

func runSOS(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	message, _ := cmd.Flags().GetString("message")

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.TriggerSOS(cmd.Context(), subject, message)
	if err != nil {
		return fmt.Errorf("trigger sos: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
