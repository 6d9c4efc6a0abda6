package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/store"
)

func newFeedbackCmd(opts *options) *cobra.Command {
	var good, bad bool
	var backend string

	cmd := &cobra.Command{
		Use:   "feedback JOB_ID",
		Short: "Vote on the answer of a previous job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if good == bad {
				return errors.New("exactly one of --good or --bad is required")
			}
			jobID := args[0]

			e, err := opts.openEnv()
			if err != nil {
				return err
			}
			s, _, err := e.session(cmd.Context(), nil)
			if err != nil {
				return err
			}

			st := s.State()
			if backend == "" {
				backend = st.Selection.BackendID
			}
			b, ok := st.Backend(backend)
			if !ok {
				return fmt.Errorf("unknown backend %q", backend)
			}

			if err := s.Client().SubmitFeedback(cmd.Context(), b, jobID, good); err != nil {
				return err
			}

			db, err := e.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.NewRecorder(db).RecordFeedback(cmd.Context(), b.ID, jobID, good); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record feedback: %v\n", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s feedback sent for job %s\n", color.GreenString("ok"), jobID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&good, "good", false, "the answer was helpful")
	cmd.Flags().BoolVar(&bad, "bad", false, "the answer was not helpful")
	cmd.Flags().StringVar(&backend, "backend", "", "backend that answered the job (default: the remembered selection)")
	return cmd
}
