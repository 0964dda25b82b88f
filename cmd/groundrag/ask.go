package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"groundrag/internal/document"
	"groundrag/internal/domain"
)

var (
	askDocument string
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the corpus or a document",
	Long: `Answers a question using the passages most similar to it in the configured
index. With --document the whole file is used as context instead and the index
is not consulted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askDocument, "document", "d", "", "answer from this .txt, .md or .pdf file instead of the index")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	var doc *document.Document
	if askDocument != "" {
		d, err := document.Load(askDocument)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		doc = &d
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var res domain.QueryResult
	if doc != nil {
		res, err = a.Pipeline.RunDirectQuery(cmd.Context(), doc.Text, question)
	} else {
		res, err = a.Pipeline.RunRetrievalQuery(cmd.Context(), question)
	}
	if err != nil {
		return err
	}

	if askJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	writeAnswer(cmd.OutOrStdout(), res, isTerminal(cmd.OutOrStdout()))
	return nil
}

func writeJSON(w io.Writer, res domain.QueryResult) error {
	if res.Sources == nil {
		res.Sources = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeAnswer(w io.Writer, res domain.QueryResult, colored bool) {
	heading := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)
	if colored {
		heading.EnableColor()
		dim.EnableColor()
	} else {
		heading.DisableColor()
		dim.DisableColor()
	}

	heading.Fprintln(w, "Answer")
	fmt.Fprintln(w, res.Answer)

	if len(res.Sources) > 0 {
		fmt.Fprintln(w)
		heading.Fprintln(w, "Sources")
		for i, s := range res.Sources {
			if s == "" {
				s = "(unknown)"
			}
			fmt.Fprintf(w, "  [%d] %s\n", i+1, s)
		}
	}

	if len(res.Passages) > 0 {
		fmt.Fprintln(w)
		heading.Fprintln(w, "Context")
		for i, p := range res.Passages {
			dim.Fprintf(w, "  [%d] %s\n", i+1, p)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && !color.NoColor && term.IsTerminal(int(f.Fd()))
}
