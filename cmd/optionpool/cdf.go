package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"optionPool/internal/cdf"
	"optionPool/internal/config"
)

func newCDFCommand() *cobra.Command {
	cdfCmd := &cobra.Command{
		Use:   "cdf",
		Short: "Inspect or export the premium CDF table",
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print the table value for a duration and sigma",
		RunE:  runCDFLookup,
	}
	lookupCmd.Flags().Uint64("duration", 3600, "round duration in seconds")
	lookupCmd.Flags().Uint64("sigma", 70, "sigma (multiple of 5)")
	lookupCmd.Flags().String("cdf-table", "", "CDF table JSON file (empty uses the built-in table)")
	cdfCmd.AddCommand(lookupCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the built-in table as JSON",
		RunE:  runCDFExport,
	}
	exportCmd.Flags().String("out", "./data/cdf.json", "output path")
	cdfCmd.AddCommand(exportCmd)

	return cdfCmd
}

func runCDFLookup(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	params, _, err := config.LoadPool(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	duration, _ := cmd.Flags().GetUint64("duration")
	sigma, _ := cmd.Flags().GetUint64("sigma")
	if sigma%cdf.SigmaStep != 0 {
		return fmt.Errorf("sigma %d is not a multiple of %d", sigma, cdf.SigmaStep)
	}

	table, err := loadTable(params.CDFTable)
	if err != nil {
		return err
	}
	value, err := table.Lookup(duration, sigma/cdf.SigmaStep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%d\t%d\t%.9f\n", duration, sigma, value, float64(value)/cdf.Amplifier)
	return nil
}

func runCDFExport(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return fmt.Errorf("output path is required")
	}
	if err := cdf.Default().Save(out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d durations to %s\n", len(cdf.Default().Durations()), out)
	return nil
}
