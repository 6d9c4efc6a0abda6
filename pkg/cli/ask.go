package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/markdown"
	"github.com/kubestellar/console-assistant/pkg/store"
)

const progressBarWidth = 30

type askOptions struct {
	backend   string
	model     string
	task      string
	editor    string
	apply     bool
	append    bool
	raw       bool
	width     int
	noHistory bool
}

func newAskCmd(opts *options) *cobra.Command {
	ao := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask QUERY...",
		Short: "Send a query to the selected backend and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, ao, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVar(&ao.backend, "backend", "", "backend id to use")
	f.StringVar(&ao.model, "model", "", "model id to use")
	f.StringVar(&ao.task, "task", "", "task id to use")
	f.StringVarP(&ao.editor, "file", "f", "", "YAML file sent as context with the query")
	f.BoolVar(&ao.apply, "apply", false, "write the first YAML block of the answer into --file")
	f.BoolVar(&ao.append, "append", false, "append to --file instead of replacing it")
	f.BoolVar(&ao.raw, "raw", false, "print the answer without rendering markdown")
	f.IntVar(&ao.width, "width", 0, "wrap width for rendered answers")
	f.BoolVar(&ao.noHistory, "no-history", false, "do not record the query in the history database")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *options, ao *askOptions, query string) error {
	if ao.apply && ao.editor == "" {
		return errors.New("--apply requires --file")
	}

	e, err := opts.openEnv()
	if err != nil {
		return err
	}

	var recorder assistant.Recorder
	if !ao.noHistory {
		db, err := e.openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		recorder = store.NewRecorder(db)
	}

	ctx := cmd.Context()
	s, _, err := e.session(ctx, recorder)
	if err != nil {
		return err
	}
	if err := applySelection(s, ao.backend, ao.model, ao.task); err != nil {
		return err
	}

	var editorYAML string
	if ao.editor != "" {
		data, err := os.ReadFile(ao.editor)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", ao.editor, err)
		}
		editorYAML = string(data)
		s.SetEditorYAML(editorYAML)
	}

	stderr := cmd.ErrOrStderr()
	unsubscribe := s.Subscribe(newProgressPrinter(stderr))
	answer, err := s.Ask(ctx, query)
	unsubscribe()
	fmt.Fprintln(stderr)
	if err != nil {
		return err
	}

	prefs := e.vault.Preferences()
	if err := e.vault.RememberSelection(s.State().Selection); err != nil {
		fmt.Fprintf(stderr, "warning: failed to remember selection: %v\n", err)
	}
	fmt.Fprintf(stderr, "%s %s\n", color.GreenString("job"), answer.JobID)

	out := cmd.OutOrStdout()
	width := ao.width
	if width <= 0 {
		width = prefs.RenderWidth
	}
	if err := printAnswer(out, answer.TaskOutput, ao.raw, width); err != nil {
		return err
	}

	if ao.apply {
		return applyToFile(s, out, ao.editor, editorYAML, ao.append || prefs.AppendYAML)
	}
	return nil
}

// applySelection selects the requested ids and fails on ones the backend
// does not offer
func applySelection(s *assistant.Session, backend, model, task string) error {
	if backend != "" {
		if st := s.SelectBackend(backend); st.Selection.BackendID != backend {
			return fmt.Errorf("unknown backend %q", backend)
		}
	}
	if model != "" {
		if st := s.SelectModel(model); st.Selection.ModelID != model {
			return fmt.Errorf("backend %q has no model %q", s.State().Selection.BackendID, model)
		}
	}
	if task != "" {
		if st := s.SelectTask(task); st.Selection.TaskID != task {
			return fmt.Errorf("model %q has no task %q", s.State().Selection.ModelID, task)
		}
	}
	return nil
}

func printAnswer(w io.Writer, output string, raw bool, width int) error {
	if raw {
		_, err := fmt.Fprintln(w, output)
		return err
	}
	rendered, err := markdown.Render(output, width)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

func applyToFile(s *assistant.Session, w io.Writer, path, current string, appendMode bool) error {
	var block *markdown.CodeBlock
	for _, b := range s.CodeBlocks() {
		if markdown.TargetFor(b.Language) == markdown.TargetEditor {
			block = &b
			break
		}
	}
	if block == nil {
		return errors.New("the answer has no YAML block to apply")
	}

	st, err := s.ApplyCodeBlock(*block, appendMode)
	if err != nil {
		return err
	}
	proposed := markdown.ApplyYAML(current, st.PendingYAML, st.PendingYAMLAppend)
	diff, err := markdown.Diff(current, proposed)
	if err != nil {
		return err
	}
	fmt.Fprint(w, diff)

	if err := os.WriteFile(path, []byte(proposed), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// progressPrinter draws the job's approximate progress on one line
type progressPrinter struct {
	w    io.Writer
	mu   sync.Mutex
	last float64
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: -1}
}

func (p *progressPrinter) OnState(st assistant.State) {
	if !st.Loading || st.Job.Progress < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.Job.Progress == p.last {
		return
	}
	p.last = st.Job.Progress

	filled := int(st.Job.Progress / 100 * progressBarWidth)
	filled = min(max(filled, 0), progressBarWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(" ", progressBarWidth-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%%", color.CyanString("waiting"), bar, st.Job.Progress)
}
