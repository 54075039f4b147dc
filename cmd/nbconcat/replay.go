package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nbconcat/internal/concat"
	"nbconcat/internal/journal"
	"nbconcat/internal/notebook"
	"nbconcat/internal/observ"
	"nbconcat/internal/protocol"
	"nbconcat/internal/trace"
)

var replayCmd = &cobra.Command{
	Use:          "replay <journal>",
	Short:        "Replay a journal recorded by serve and show the resulting documents",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runReplay,
}

func init() {
	replayCmd.Flags().Bool("text", false, "print the final text of every document")
	replayCmd.Flags().Bool("quiet", false, "do not print a line per record")
	replayCmd.Flags().Bool("timings", false, "print phase timings to stderr")
}

func runReplay(cmd *cobra.Command, args []string) error {
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cleanup, err := setupTracing(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	tracer := trace.FromContext(cmd.Context())

	opts, err := cfg.NotebookOptions(tracer)
	if err != nil {
		return err
	}
	timer := observ.NewTimer()
	var records []journal.Record
	if err := timer.Measure("read", func() error {
		records, err = journal.ReadFile(args[0])
		return err
	}); err != nil {
		return err
	}
	var (
		conv      *notebook.Converter
		steps     []journal.Step
		replayErr error
	)
	_ = timer.Measure("replay", func() error {
		conv, steps, replayErr = journal.Replay(records, opts)
		return replayErr
	})

	out := cmd.OutOrStdout()
	colored, err := useColor(cmd, out)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	showText, _ := cmd.Flags().GetBool("text")
	if err := timer.Measure("render", func() error {
		return renderReplay(out, conv, steps, colored, quiet, showText)
	}); err != nil {
		return err
	}
	if timings, _ := cmd.Flags().GetBool("timings"); timings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return replayErr
}

func renderReplay(out io.Writer, conv *notebook.Converter, steps []journal.Step, colored, quiet, showText bool) error {
	if !quiet {
		for _, step := range steps {
			if err := printStep(out, step, colored); err != nil {
				return err
			}
		}
	}
	if !showText {
		return nil
	}
	for _, key := range conv.Notebooks() {
		doc, _ := conv.Document(key)
		if _, err := fmt.Fprintf(out, "==> %s (version %d)\n%s", doc.URI(), doc.Version(), doc.Text()); err != nil {
			return err
		}
	}
	return nil
}

func printStep(out io.Writer, step journal.Step, colored bool) error {
	kind := color.New(color.FgCyan)
	if colored {
		kind.EnableColor()
	} else {
		kind.DisableColor()
	}
	ev, err := step.Record.Event()
	if err != nil {
		return err
	}
	outcome := describeNotifications(step.Notifications)
	if step.Err != nil {
		outcome = "dropped: " + step.Err.Error()
	}
	_, err = fmt.Fprintf(out, "#%d %s %s %s -> %s\n",
		step.Record.Seq,
		step.Record.Time.Format("15:04:05.000"),
		kind.Sprint(step.Record.Kind),
		eventTarget(ev),
		outcome)
	return err
}

func eventTarget(ev concat.Event) string {
	if r, ok := ev.(concat.RefreshEvent); ok {
		if r.Notebook != "" {
			return r.Notebook
		}
		return fmt.Sprintf("%d cells", len(r.Cells))
	}
	return concat.EventURI(ev)
}

func describeNotifications(notes []notebook.Notification) string {
	if len(notes) == 0 {
		return "(nothing)"
	}
	out := ""
	for i, n := range notes {
		if i > 0 {
			out += ", "
		}
		out += n.Method
		if change, ok := n.Params.(protocol.DidChangeTextDocumentParams); ok {
			out += fmt.Sprintf(" v%d (%d edits)", change.TextDocument.Version, len(change.ContentChanges))
		}
	}
	return out
}
