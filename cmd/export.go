package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a snapshot of all match results",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		var w io.Writer = os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		count, err := a.matcher.ExportSnapshot(context.Background(), exportFormat, w)
		if err != nil {
			return err
		}

		a.log.Info("export complete",
			zap.String("format", exportFormat),
			zap.String("out", exportOut),
			zap.Int("rows", count))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json or csv")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	RootCmd.AddCommand(exportCmd)
}
