package app

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/output"
)

var (
	listFormat string

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Show approved packages",
		Long:  `List every package in the ledger with the revision it was approved at. No network access.`,
		Example: `  aurtrust list
  aurtrust list --format json`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().StringVarP(&listFormat, "format", "o", "table", "output format: table, json, yaml")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listFormat)
	if err != nil {
		return err
	}

	l, err := env.loadLedger()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == output.FormatTable {
		_, err := io.WriteString(out, output.RenderLedgerTable(l.Records()))
		return err
	}
	return output.WriteRecords(out, l.Records(), format)
}
