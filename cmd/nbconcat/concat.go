package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nbconcat/internal/concat"
	"nbconcat/internal/notebook"
	"nbconcat/internal/pragma"
	"nbconcat/internal/protocol"
	"nbconcat/internal/trace"
)

var concatCmd = &cobra.Command{
	Use:   "concat <notebook.ipynb>",
	Short: "Print the concatenated document for a notebook",
	Long: `concat folds the code cells of a notebook into the document the backend
would see. Injected text is highlighted when color is enabled.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runConcat,
}

func init() {
	concatCmd.Flags().Bool("no-type-ignore", false, "do not annotate interpreter-only lines")
	concatCmd.Flags().String("header-preset", "", "override the header preset (none|ipython)")
	concatCmd.Flags().String("locate", "", "map a LINE:COL position of the output back to its cell and exit")
}

func runConcat(cmd *cobra.Command, args []string) error {
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("no-type-ignore") {
		cfg.Document.DisableTypeIgnore, _ = cmd.Flags().GetBool("no-type-ignore")
	}
	if cmd.Flags().Changed("header-preset") {
		cfg.Document.HeaderPreset, _ = cmd.Flags().GetString("header-preset")
		cfg.Document.Header = ""
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
	conv, key, err := notebook.LoadIPynb(args[0], opts)
	if err != nil {
		return err
	}
	doc, ok := conv.Document(key)
	if !ok {
		return fmt.Errorf("%s: no %s cells", args[0], opts.LanguageID)
	}

	out := cmd.OutOrStdout()
	if locate, _ := cmd.Flags().GetString("locate"); locate != "" {
		pos, err := parseLineCol(locate)
		if err != nil {
			return err
		}
		loc, err := doc.NotebookLocationAt(pos)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s:%d:%d\n", loc.URI, loc.Range.Start.Line+1, loc.Range.Start.Character+1)
		return err
	}

	colored, err := useColor(cmd, out)
	if err != nil {
		return err
	}
	if !colored {
		_, err = io.WriteString(out, doc.Text())
		return err
	}
	return printSpans(out, doc)
}

// parseLineCol parses a one-based LINE:COL pair into a protocol position.
func parseLineCol(s string) (protocol.Position, error) {
	lineText, colText, ok := strings.Cut(s, ":")
	if !ok {
		return protocol.Position{}, fmt.Errorf("invalid position %q (expected LINE:COL)", s)
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 {
		return protocol.Position{}, fmt.Errorf("invalid line in %q", s)
	}
	col, err := strconv.Atoi(colText)
	if err != nil || col < 1 {
		return protocol.Position{}, fmt.Errorf("invalid column in %q", s)
	}
	return protocol.Position{Line: line - 1, Character: col - 1}, nil
}

// printSpans writes the document span by span, highlighting injected text.
func printSpans(out io.Writer, doc *concat.Document) error {
	header := color.New(color.FgHiBlack)
	annotation := color.New(color.FgYellow)
	header.EnableColor()
	annotation.EnableColor()
	for _, uri := range doc.Cells() {
		spans, err := doc.Spans(uri)
		if err != nil {
			return err
		}
		for _, s := range spans {
			var werr error
			switch s.Kind {
			case pragma.KindHeader:
				_, werr = header.Fprint(out, s.Text)
			case pragma.KindAnnotation:
				_, werr = annotation.Fprint(out, s.Text)
			default:
				_, werr = io.WriteString(out, s.Text)
			}
			if werr != nil {
				return werr
			}
		}
	}
	return nil
}
