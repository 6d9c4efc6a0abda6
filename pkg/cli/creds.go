package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/settings"
)

func newCredsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage backend credentials stored locally for the file source",
	}

	var email string
	setCmd := &cobra.Command{
		Use:   "set SECRET_NAME",
		Short: "Store credentials under the secret name a backend's auth references; the token is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := settings.NewManager(opts.settingsDir)
			if err != nil {
				return err
			}
			token, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && token == "" {
				return errors.New("a token is required on stdin")
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("a token is required on stdin")
			}
			if err := vault.SetCredentials(args[0], assistant.AuthCreds{Email: email, Token: token}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored credentials %s\n", args[0])
			return nil
		},
	}
	setCmd.Flags().StringVar(&email, "email", "", "account email sent with requests")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credential names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := settings.NewManager(opts.settingsDir)
			if err != nil {
				return err
			}
			for _, name := range vault.CredentialNames() {
				creds, err := vault.GetCredentials(name)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(unreadable: %v)\n", name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, creds.Email)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete SECRET_NAME",
		Short: "Delete stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := settings.NewManager(opts.settingsDir)
			if err != nil {
				return err
			}
			if err := vault.DeleteCredentials(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted credentials %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(setCmd, listCmd, deleteCmd)
	return cmd
}
