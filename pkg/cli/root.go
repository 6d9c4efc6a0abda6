package cli

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command
type options struct {
	configPath  string
	settingsDir string
	kubeconfig  string
	context     string
	dbPath      string
}

// NewCLI creates the assistantctl root command
func NewCLI(version string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "assistantctl",
		Short:         "Query the console assistant backends from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
				log.SetOutput(io.Discard)
			}
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("assistantctl version %s\n", version))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to the config file (default ~/.kc/assistant.yaml)")
	flags.StringVar(&opts.settingsDir, "settings-dir", "", "directory holding local settings and credentials (default ~/.kc)")
	flags.StringVar(&opts.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	flags.StringVar(&opts.context, "context", "", "kubeconfig context to use")
	flags.StringVar(&opts.dbPath, "db", "", "path to the history database (default ~/.kc/assistant.db)")
	flags.BoolP("verbose", "v", false, "show diagnostic logs")

	rootCmd.AddCommand(
		newBackendsCmd(opts),
		newAskCmd(opts),
		newFeedbackCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(),
		newInstallCRDCmd(opts),
		newCredsCmd(opts),
	)

	return rootCmd
}
