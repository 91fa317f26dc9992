package main

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cas-bridge/internal/dialect"
)

func newDialectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the engines kernels can be created for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printDialects(cmd.OutOrStdout(), a.registry.List())
			return nil
		},
	}
}

func printDialects(out io.Writer, profiles []*dialect.Profile) {
	nameW, titleW := len("NAME"), len("ENGINE")
	for _, p := range profiles {
		nameW = max(nameW, len(p.Name))
		titleW = max(titleW, lipgloss.Width(p.Title()))
	}
	nameCol := lipgloss.NewStyle().Width(nameW + 2)
	titleCol := lipgloss.NewStyle().Width(titleW + 2)

	fmt.Fprintln(out, nameCol.Render(headerStyle.Render("NAME"))+
		titleCol.Render(headerStyle.Render("ENGINE"))+
		headerStyle.Render("COMMAND"))

	for _, p := range profiles {
		command := successStyle.Render(p.Command)
		if _, err := exec.LookPath(p.Command); err != nil {
			command = dimStyle.Render(p.Command + " (not found)")
		}
		fmt.Fprintln(out, nameCol.Render(p.Name)+titleCol.Render(p.Title())+command)
	}
}
