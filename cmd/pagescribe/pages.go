package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/pages"
	"github.com/nikhilbhutani/pagescribe/internal/pdfdoc"
)

var (
	selPages    string
	selAll      bool
	selTotal    int
	selProvider string
)

var pagesCmd = &cobra.Command{
	Use:   "pages FILE.pdf",
	Short: "Show document details and the pages a selection resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		info, err := pdfdoc.Inspect(data)
		if err != nil {
			return err
		}
		provider, err := llm.ParseProvider(selProvider)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "file:        %s\n", args[0])
		fmt.Fprintf(out, "title:       %s\n", pdfdoc.DisplayName("", info.Title, args[0]))
		fmt.Fprintf(out, "pages:       %d\n", info.PageCount)
		fmt.Fprintf(out, "text layer:  %t\n", info.HasTextLayer)
		printSelection(out, pages.Select(selPages, selAll, info.PageCount), provider)
		return nil
	},
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Price a page selection without a file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := llm.ParseProvider(selProvider)
		if err != nil {
			return err
		}
		printSelection(cmd.OutOrStdout(), pages.Select(selPages, selAll, selTotal), provider)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pagesCmd, estimateCmd} {
		c.Flags().StringVarP(&selPages, "pages", "p", "", `page selection, e.g. "1-3, 7"`)
		c.Flags().BoolVar(&selAll, "all", false, "select every page")
		c.Flags().StringVar(&selProvider, "provider", string(llm.ProviderGemini), "gemini, openai or anthropic")
	}
	estimateCmd.Flags().IntVar(&selTotal, "total", 0, "page count of the document")
	_ = estimateCmd.MarkFlagRequired("total")
}

func printSelection(out io.Writer, selected []int, provider llm.ProviderID) {
	compact := pages.Compact(selected)
	if compact == "" {
		compact = "(none)"
	}
	fmt.Fprintf(out, "selection:   %s (%d pages)\n", compact, len(selected))
	est, ok := llm.EstimateCost(len(selected), provider)
	if !ok {
		return
	}
	note := ""
	if llm.RequiresAPIKey(provider) {
		note = " (needs an API key)"
	}
	fmt.Fprintf(out, "estimate:    %s on %s%s\n", est, provider, note)
}
