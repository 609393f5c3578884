package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Manage emergency contacts",
}

var contactsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an emergency contact for a subject",
	RunE:  runContactsAdd,
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a subject's emergency contacts",
	RunE:  runContactsList,
}

func init() {
	rootCmd.AddCommand(contactsCmd)
	contactsCmd.AddCommand(contactsAddCmd)
	contactsCmd.AddCommand(contactsListCmd)

	contactsAddCmd.Flags().StringP("subject", "s", "", "Subject id")
	contactsAddCmd.Flags().String("name", "", "Contact name")
	contactsAddCmd.Flags().String("relationship", "", "Relationship to the subject")
	contactsAddCmd.Flags().String("phone", "", "Phone number for SMS")
	contactsAddCmd.Flags().String("email", "", "Email address")
	_ = contactsAddCmd.MarkFlagRequired("subject")
	_ = contactsAddCmd.MarkFlagRequired("name")

	contactsListCmd.Flags().StringP("subject", "s", "", "Subject id")
	_ = contactsListCmd.MarkFlagRequired("subject")
}

func runContactsAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	name, _ := cmd.Flags().GetString("name")
	relationship, _ := cmd.Flags().GetString("relationship")
	phone, _ := cmd.Flags().GetString("phone")
	email, _ := cmd.Flags().GetString("email")

	if strings.TrimSpace(phone) == "" && strings.TrimSpace(email) == "" {
		return fmt.Errorf("a contact needs a phone number or an email address")
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	c := &model.EmergencyContact{
		SubjectID:    strings.TrimSpace(subject),
		Name:         strings.TrimSpace(name),
		Relationship: strings.TrimSpace(relationship),
		Phone:        strings.TrimSpace(phone),
		Email:        strings.TrimSpace(email),
	}
	if err := store.AddEmergencyContact(cmd.Context(), c); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Contact %s added (id %s)\n", c.Name, c.ID)
	return nil
}

func runContactsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	contacts, err := store.ListEmergencyContacts(cmd.Context(), subject)
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(contacts) == 0 {
		fmt.Fprintf(out, "No emergency contacts for %s.\n", subject)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRELATIONSHIP\tPHONE\tEMAIL")
	fmt.Fprintln(w, "----\t------------\t-----\t-----")
	for _, c := range contacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, dash(c.Relationship), dash(c.Phone), dash(c.Email))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
