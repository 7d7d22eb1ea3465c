package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/newthinker/stonks/internal/engine"
	"github.com/newthinker/stonks/internal/portfolio"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refresh bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync and print the accounts",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch positions even when cached")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}
	snap, err := syncOnce(cmd.Context(), eng, log)
	if err != nil {
		return err
	}

	for _, acc := range snap.Accounts {
		printAccount(os.Stdout, snap, acc)
	}
	log.Info("accounts listed",
		zap.Int("count", len(snap.Accounts)),
		zap.Strings("failed_symbols", snap.Failed()),
	)
	return nil
}

// syncOnce runs a sync to completion and returns the resulting snapshot.
func syncOnce(ctx context.Context, eng *engine.Engine, log *zap.Logger) (*portfolio.Snapshot, error) {
	sync := eng.Sync
	if refresh {
		sync = eng.Refresh
	}
	t := sync(ctx)
	if t == nil {
		return nil, fmt.Errorf("sync already in progress")
	}
	if err := t.Wait(ctx); err != nil {
		return nil, err
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("sync failed: %w", err)
	}
	snap := eng.Snapshot()
	if snap == nil {
		return nil, fmt.Errorf("sync produced no portfolio")
	}
	if eng.NeedsSignIn() {
		log.Warn("brokerage session expired, sign in again")
	}
	return snap, nil
}

func printAccount(out io.Writer, snap *portfolio.Snapshot, acc portfolio.Account) {
	if sum, ok := snap.Summary(acc.ID); ok {
		fmt.Fprintf(out, "%s  %s  %s\n", sum.DisplayName, sum.BalanceText, sum.DailyChangeText)
		fmt.Fprintf(out, "cash %s  buying power %s  %s\n\n", sum.CashText, sum.BuyingPowerText, sum.BenchmarkText)
	}

	rows := snap.StockRows(acc.ID, portfolio.Sort{Column: portfolio.ColValue, Desc: true})
	if len(rows) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tSHARES\tPRICE\tVALUE\tAVG COST\tP&L\tP&L %\tALLOC\t")
		fmt.Fprintln(w, "------\t------\t-----\t-----\t--------\t---\t-----\t-----\t")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				r.Symbol, r.SharesText, r.PriceText, r.ValueText,
				r.AvgCostText, r.PLText, r.PLPctText, r.AllocationText)
		}
		w.Flush()
		fmt.Fprintln(out)
	}

	opts := snap.OptionRows(acc.ID, portfolio.Sort{Column: portfolio.ColDTE})
	if len(opts) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tTYPE\tSIDE\tSTRIKE\tDTE\tDELTA\tVALUE\tP&L\t")
		fmt.Fprintln(w, "------\t----\t----\t------\t---\t-----\t-----\t---\t")
		for _, r := range opts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t\n",
				r.Symbol, r.Type, r.Side, r.StrikeText, r.DTE,
				r.DeltaText, r.ValueText, r.PLText)
		}
		w.Flush()
		fmt.Fprintln(out)
	}
}
