package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"optionPool/internal/config"
	"optionPool/internal/fixedpoint"
	"optionPool/internal/pool"
	"optionPool/internal/snapshot"
)

func newInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a pool snapshot and account claimables",
		RunE:  runInspect,
	}
	inspectCmd.Flags().String("state-file", "./data/pool_state.json", "pool snapshot path")
	inspectCmd.Flags().StringSlice("account", nil, "accounts to report claimables for (comma-separated)")
	inspectCmd.Flags().String("cdf-table", "", "CDF table JSON file (empty uses the built-in table)")
	return inspectCmd
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	params, _, err := config.LoadPool(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	statePath, _ := cmd.Flags().GetString("state-file")
	accounts, _ := cmd.Flags().GetStringSlice("account")

	snap, ok, err := snapshot.NewStore(statePath).Load()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot at %s", statePath)
	}
	table, err := loadTable(params.CDFTable)
	if err != nil {
		return err
	}
	owner, err := parseAddress("owner", snap.Pool.Owner)
	if err != nil {
		return err
	}
	p, err := pool.Restore(snap.Pool, pool.NewAdministration(owner), pool.Deps{Table: table})
	if err != nil {
		return fmt.Errorf("restore pool: %w", err)
	}

	addrs := make([]common.Address, 0, len(accounts))
	for _, account := range accounts {
		addr, err := parseAddress("account", account)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	return printPool(cmd.OutOrStdout(), p, snap.LastRun, addrs)
}

func printPool(out io.Writer, p *pool.Pool, lastRun uint64, accounts []common.Address) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rate, maxRate := p.UtilizationRate()
	locked, err := p.LockedCollateral()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "pool\t%s\n", p.Address().Hex())
	fmt.Fprintf(w, "direction\t%s\n", p.Direction())
	fmt.Fprintf(w, "last run\t%d\n", lastRun)
	fmt.Fprintf(w, "collateral\t%s\n", fixedpoint.FormatDec(p.Collateral()))
	fmt.Fprintf(w, "locked\t%s\n", fixedpoint.FormatDec(locked))
	fmt.Fprintf(w, "shares\t%s\n", fixedpoint.FormatDec(p.ShareSupply()))
	fmt.Fprintf(w, "sigma\t%d\n", p.Sigma())
	fmt.Fprintf(w, "utilization\t%d/%d\n", rate, maxRate)
	fmt.Fprintf(w, "fee reserve\t%s\n", fixedpoint.FormatDec(p.FeeReserve()))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "duration\tround\tstrike\texpiry\tsupply\tunsold")
	for _, opt := range p.Options() {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n",
			opt.Duration(), opt.CurrentRound(),
			fixedpoint.FormatDec(opt.StrikePrice()), opt.ExpiryDate(),
			fixedpoint.FormatDec(opt.TotalSupply()), fixedpoint.FormatDec(opt.BalanceOf(p.Address())),
		)
	}

	if len(accounts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "account\tshares\tpremium\tprofits")
		for _, account := range accounts {
			premium, err := p.CheckPremium(account)
			if err != nil {
				return fmt.Errorf("check premium %s: %w", account.Hex(), err)
			}
			profits, err := p.CheckProfits(account)
			if err != nil {
				return fmt.Errorf("check profits %s: %w", account.Hex(), err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", account.Hex(),
				fixedpoint.FormatDec(p.ShareBalance(account)),
				fixedpoint.FormatDec(premium), fixedpoint.FormatDec(profits))
		}
	}
	return w.Flush()
}
