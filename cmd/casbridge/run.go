package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"cas-bridge/internal/repl"
)

// cell is one unit of code read from a file or standard input.
type cell struct {
	name string
	code string
}

func newRunCmd(a *app) *cobra.Command {
	var dialectName string
	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Run files as cells through an engine",
		Long: `Run submits each file as one cell to a fresh engine session and prints
the results in order. With no files, standard input is a single cell.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cells, err := readCells(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), dialectName, cells)
		},
	}
	cmd.Flags().StringVarP(&dialectName, "dialect", "d", "bc", "Dialect to run the cells with")
	cmd.Flags().StringVar(&a.cfg.ScratchDir, "scratch-dir", a.cfg.ScratchDir, "Directory for scratch files")
	return cmd
}

func readCells(stdin io.Reader, files []string) ([]cell, error) {
	if len(files) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []cell{{name: "<stdin>", code: string(data)}}, nil
	}

	cells := make([]cell, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell{name: f, code: string(data)})
	}
	return cells, nil
}

func (a *app) run(ctx context.Context, out io.Writer, dialectName string, cells []cell) error {
	p, err := a.registry.Lookup(dialectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.cfg.ScratchDir, 0o700); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	s, err := repl.Start(p, repl.Options{
		ScratchDir: a.cfg.ScratchDir,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	failed := 0
	for i, c := range cells {
		seq := i + 1
		r, err := s.Execute(ctx, seq, c.code)
		if err != nil {
			return fmt.Errorf("cell %d (%s): %w", seq, c.name, err)
		}
		renderCell(out, seq, c.name, r)
		if !r.OK {
			failed++
		}
	}

	summary := fmt.Sprintf("%s %s  %s %d",
		dimStyle.Render("Engine:"), p.Title(),
		dimStyle.Render("Cells:"), len(cells))
	if failed > 0 {
		summary += "  " + errorStyle.Render(fmt.Sprintf("%d failed", failed))
	} else {
		summary += "  " + successStyle.Render("all ok")
	}
	fmt.Fprintln(out, boxStyle.Render(summary))

	if failed > 0 {
		return fmt.Errorf("%d of %d cells failed", failed, len(cells))
	}
	return nil
}

func renderCell(w io.Writer, seq int, name string, r repl.Response) {
	fmt.Fprintln(w, cellStyle.Render(fmt.Sprintf("[%d]", seq)), dimStyle.Render(name))
	if !r.OK {
		fmt.Fprintln(w, errorStyle.Render(r.Diagnostic()))
		return
	}
	for _, item := range repl.Render(r) {
		if text, ok := item.Data["text/plain"].(string); ok {
			fmt.Fprintln(w, text)
			continue
		}
		types := make([]string, 0, len(item.Data))
		for mime := range item.Data {
			types = append(types, mime)
		}
		sort.Strings(types)
		fmt.Fprintln(w, dimStyle.Render("<"+strings.Join(types, ", ")+">"))
	}
}
