package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

//go:embed RULES.md
var rules string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Explain how to play",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		style := styles.AutoStyle
		width := 80
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w < 120 {
				width = w
			}
		} else {
			style = styles.NoTTYStyle
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithColorProfile(lipgloss.ColorProfile()),
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return fmt.Errorf("unable to create renderer: %w", err)
		}

		out, err := r.Render(rules)
		if err != nil {
			return fmt.Errorf("unable to render markdown: %w", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}
