package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

func newBackendsCmd(opts *options) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Discover the configured assistant backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEnv()
			if err != nil {
				return err
			}
			s, result, err := e.session(cmd.Context(), nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := s.State()
			printBackends(out, st)
			for id, err := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", color.RedString("unavailable"), id, err)
			}

			if tree {
				if b := st.CurrentBackend(); b != nil {
					fmt.Fprintln(out)
					printTree(out, assistant.BuildModelTree(b.Manifest.Models), 0)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "print the model tree of the selected backend")
	return cmd
}

func printBackends(w io.Writer, st assistant.State) {
	var data [][]string
	for _, b := range st.Backends {
		selected := ""
		model, task := "", ""
		if b.ID == st.Selection.BackendID {
			selected = "*"
			model, task = st.Selection.ModelID, st.Selection.TaskID
			if t, ok := st.CurrentTask(); ok {
				task = fmt.Sprintf("%s (%s)", t.ID(), t.TaskTitle)
			}
		}
		data = append(data, []string{selected, b.ID, b.Name, b.HostURL(), fmt.Sprint(len(b.Manifest.Models)), model, task})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "ID", "NAME", "HOST", "MODELS", "MODEL", "TASK"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func printTree(w io.Writer, n *assistant.ModelTreeNode, depth int) {
	label := n.Name
	if n.IsLeaf() && n.ID != n.Name {
		label = fmt.Sprintf("%s [%s]", n.Name, n.ID)
	}
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), label)
	for _, c := range n.Children {
		printTree(w, c, depth+1)
	}
}
