package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/stonks/internal/engine"
	"github.com/newthinker/stonks/internal/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var signalGroup string

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Run one sync and print the detected signals",
	RunE:  runSignals,
}

func init() {
	signalsCmd.Flags().StringVar(&signalGroup, "group", signals.GroupAll, "restrict to index funds (funds) or individual stocks (individual)")
	signalsCmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch positions even when cached")
	rootCmd.AddCommand(signalsCmd)
}

func runSignals(cmd *cobra.Command, args []string) error {
	switch signalGroup {
	case signals.GroupAll, signals.GroupIndexFunds, signals.GroupIndividual:
	default:
		return fmt.Errorf("unknown group %q", signalGroup)
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}
	if _, err := syncOnce(cmd.Context(), eng, log); err != nil {
		return err
	}
	report, err := eng.Signals(cmd.Context())
	if err != nil {
		return err
	}
	report = report.Filter(signalGroup)

	printSignals(os.Stdout, report)
	counts := report.Counts()
	log.Info("signals detected",
		zap.Int("symbols", len(report.Symbols)),
		zap.Int("gaps", counts[signals.KindGap]),
		zap.Int("ma_proximity", counts[signals.KindMAProximity]),
		zap.Int("below_ma_200", counts[signals.KindBelowMA200]),
		zap.Int("near_highs", counts[signals.KindNearHigh]),
		zap.Int("breakouts", counts[signals.KindBreakout]),
		zap.Int("earnings", counts[signals.KindEarnings]),
	)
	return nil
}

func printSignals(out io.Writer, r *signals.Report) {
	table(out, "GAPS", "SYMBOL\tTYPE\tCHANGE\tVOLUME\t", len(r.Gaps), func(w io.Writer, i int) {
		e := r.Gaps[i]
		fmt.Fprintf(w, "%s\t%s\t%+.2f%%\t%.1fx\t\n", e.Symbol, e.Type, e.PctChange, e.VolumeRatio)
	})
	table(out, "MOVING AVERAGE PROXIMITY", "SYMBOL\tMA\tPRICE\tMA VALUE\tOFFSET\t", len(r.MAProximity), func(w io.Writer, i int) {
		e := r.MAProximity[i]
		fmt.Fprintf(w, "%s\t%d %s\t%.2f\t%.2f\t%+.2f%%\t\n", e.Symbol, e.Period, e.MAType, e.Price, e.MAValue, e.PctOffset)
	})
	table(out, "BELOW 200-DAY MA", "SYMBOL\tPRICE\tMA 200\tBELOW\t", len(r.BelowMA200), func(w io.Writer, i int) {
		e := r.BelowMA200[i]
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f%%\t\n", e.Symbol, e.Price, e.MA200, e.PctBelow)
	})
	table(out, "NEAR 52-WEEK HIGH", "SYMBOL\tPRICE\tHIGH\tFROM HIGH\t", len(r.NearHighs), func(w io.Writer, i int) {
		e := r.NearHighs[i]
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f%%\t\n", e.Symbol, e.Price, e.High52, e.PctFromHigh)
	})
	table(out, "BREAKOUTS", "SYMBOL\tDIRECTION\tKIND\tPRICE\tVOLUME\t", len(r.Breakouts), func(w io.Writer, i int) {
		e := r.Breakouts[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.1fx\t\n", e.Symbol, e.Direction, e.Kind, e.Price, e.VolumeRatio)
	})
	table(out, "EARNINGS", "SYMBOL\tDATE\tWHEN\tTIMING\tACCOUNTS\t", len(r.Earnings), func(w io.Writer, i int) {
		e := r.Earnings[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", e.Symbol, e.DateText, e.DaysText, e.Timing, strings.Join(e.Accounts, ", "))
	})
}

func table(out io.Writer, title, header string, n int, row func(w io.Writer, i int)) {
	if n == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d)\n", title, n)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for i := range n {
		row(w, i)
	}
	w.Flush()
	fmt.Fprintln(out)
}
