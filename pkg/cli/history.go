package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/models"
)

const maxQueryColumn = 48

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	var prune time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEnv()
			if err != nil {
				return err
			}
			db, err := e.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if prune > 0 {
				n, err := db.DeleteJobsBefore(time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d jobs\n", n)
			}

			jobs, err := db.ListJobs(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), jobs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to list")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete jobs older than this before listing")
	return cmd
}

func printHistory(w io.Writer, jobs []models.JobRecord) {
	var data [][]string
	for _, j := range jobs {
		status := string(j.Status)
		if j.Error != "" {
			status += ": " + truncate(j.Error, maxQueryColumn)
		}
		data = append(data, []string{
			j.CreatedAt.Local().Format(time.DateTime),
			j.BackendID,
			j.ModelID,
			j.JobID,
			truncate(j.Query, maxQueryColumn),
			voteLabel(j.Vote),
			status,
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"TIME", "BACKEND", "MODEL", "JOB", "QUERY", "VOTE", "STATUS"})
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

func voteLabel(v models.Vote) string {
	switch v {
	case models.VoteUp:
		return "+1"
	case models.VoteDown:
		return "-1"
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
