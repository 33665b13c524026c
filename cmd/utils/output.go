package utils

import (
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/spf13/cobra"
)

// OutputOptions holds the --output/--json/--csv flags of a data command.
type OutputOptions struct {
	Output string
	JSON   bool
	CSV    bool
}

func (o *OutputOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Output, "output", "o", "text", "Output format: text, json, csv or yaml")
	cmd.Flags().BoolVar(&o.JSON, "json", false, "Shorthand for --output json")
	cmd.Flags().BoolVar(&o.CSV, "csv", false, "Shorthand for --output csv")
	cmd.MarkFlagsMutuallyExclusive("json", "csv")
}

func (o *OutputOptions) Format() (output.Format, error) {
	switch {
	case o.JSON:
		return output.JSON, nil
	case o.CSV:
		return output.CSV, nil
	}
	return output.ParseFormat(o.Output)
}

// Printer writes to the command's stdout in the selected format.
func (o *OutputOptions) Printer(cmd *cobra.Command) (output.Printer, error) {
	f, err := o.Format()
	if err != nil {
		return output.Printer{}, err
	}
	return output.Printer{Out: cmd.OutOrStdout(), Format: f}, nil
}
