package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/pagescribe/internal/export"
)

var (
	exportFormat string
	exportOut    string
	exportTitle  string
)

var exportCmd = &cobra.Command{
	Use:   "export FILE.txt",
	Short: "Render a transcription as cleaned text or as a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		base := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
		title := exportTitle
		if title == "" {
			title = filepath.Base(base)
		}

		var buf bytes.Buffer
		switch exportFormat {
		case "pdf":
			err = export.PDF(&buf, title, string(raw), export.Options{
				HeaderBanner: settings.Export.HeaderBanner,
				FooterBanner: settings.Export.FooterBanner,
			})
			if err != nil {
				return err
			}
		case "txt":
			buf.WriteString(export.CleanText(string(raw)))
		default:
			return fmt.Errorf("unknown format %q (want pdf or txt)", exportFormat)
		}

		dest := exportOut
		if dest == "" {
			dest = base + ".export." + exportFormat
		}
		if dest == "-" {
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		}
		if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dest)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "pdf", "pdf or txt")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", `output file, "-" for stdout`)
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "document title (default: file name)")
}
