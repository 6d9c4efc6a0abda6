package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/config"
	"github.com/kubestellar/console-assistant/pkg/k8s"
)

func newInstallCRDCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install-crd",
		Short: "Install the Assistant custom resource definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgManager, err := config.NewManager(opts.configPath)
			if err != nil {
				return err
			}
			cfg := cfgManager.Get()
			if opts.kubeconfig != "" {
				cfg.Kubeconfig = opts.kubeconfig
			}
			if opts.context != "" {
				cfg.Context = opts.context
			}

			kube, err := newKubeClient(cfg)
			if err != nil {
				return err
			}
			created, err := kube.EnsureCRD(cmd.Context())
			if err != nil {
				return err
			}

			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", k8s.AssistantCRDName)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", k8s.AssistantCRDName)
			}
			return nil
		},
	}
}
