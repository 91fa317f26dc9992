package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cas-bridge/internal/syntax"
)

func newCheckCmd(a *app) *cobra.Command {
	var dialectName string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Classify code as complete, incomplete or invalid",
		Long: `Check runs a dialect's completeness classifier over a file, or standard
input, without starting an engine. It exits non-zero unless the code is
complete.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			return a.check(cmd.OutOrStdout(), dialectName, string(data), asJSON)
		},
	}
	cmd.Flags().StringVarP(&dialectName, "dialect", "d", "gap", "Dialect whose classifier to use")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verdict as JSON")
	return cmd
}

func (a *app) check(out io.Writer, dialectName, code string, asJSON bool) error {
	p, err := a.registry.Lookup(dialectName)
	if err != nil {
		return err
	}
	v := p.Classifier.Classify(code)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else {
		printVerdict(out, v)
	}

	if v.Status != syntax.Complete {
		return fmt.Errorf("%s", v.Status)
	}
	return nil
}

func printVerdict(out io.Writer, v syntax.Verdict) {
	var status string
	switch v.Status {
	case syntax.Complete:
		status = successStyle.Render(string(v.Status))
	case syntax.Incomplete:
		status = warnStyle.Render(string(v.Status))
	default:
		status = errorStyle.Render(string(v.Status))
	}
	fmt.Fprintln(out, status)
	if v.Message != "" {
		fmt.Fprintln(out, dimStyle.Render(v.Message))
	}
	for i, stmt := range v.Statements {
		fmt.Fprintf(out, "%s %s\n", dimStyle.Render(fmt.Sprintf("%3d", i+1)), stmt)
	}
}
