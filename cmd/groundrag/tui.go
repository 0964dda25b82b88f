package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"groundrag/internal/document"
	"groundrag/internal/tui"
)

var tuiDocument string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Ask questions interactively",
	Long: `Starts an interactive terminal session. With --document the session starts
in document mode over that file; Tab switches between document and retrieval
mode and Esc cancels a running question.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVarP(&tuiDocument, "document", "d", "", "start in document mode over this file")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	var doc *document.Document
	if tuiDocument != "" {
		d, err := document.Load(tuiDocument)
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}
		doc = &d
	}

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer closeApp(a)

	m := tui.New(cmd.Context(), a.Pipeline, doc)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
