package cmd

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/scribblehub-fetch/internal/novel"
)

// newTOCCmd creates the 'toc' subcommand.
func newTOCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc <url>",
		Short: "Print the table of contents of a series",
		Args:  cobra.ExactArgs(1),
		RunE:  runTOC,
	}
}

func runTOC(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	store, err := appInstance.OpenCache()
	if err != nil {
		return err
	}
	book, err := appInstance.NewBook(args[0], store, false)
	if err != nil {
		return err
	}

	meta, err := book.Metadata(cmd.Context())
	if err != nil {
		return err
	}
	refs, err := book.TOC(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTOC(meta, refs))
	return nil
}

// renderTOC lays the chapter list out as a table. # is the value accepted by
// fetch --start-with and --end-with.
func renderTOC(meta novel.BookMetadata, refs []novel.ChapterRef) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(meta.Title)
	tw.AppendHeader(table.Row{"#", "Order", "URL"})
	for i, ref := range refs {
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), strconv.Itoa(ref.Order), ref.URL})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
