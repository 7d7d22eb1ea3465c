package portfolio

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/newthinker/stonks/internal/symbols"
)

// NotAvailable is rendered for values that cannot be computed.
const NotAvailable = "N/A"

// Sort columns for the holdings tables.
const (
	ColSymbol     = "symbol"
	ColShares     = "shares"
	ColPrice      = "price"
	ColValue      = "value"
	ColCostBasis  = "cost_basis"
	ColPL         = "pl"
	ColPLPct      = "pl_pct"
	ColAllocation = "allocation"
	ColRange      = "range_52w"
	ColStrike     = "strike"
	ColDTE        = "dte"
	ColDelta      = "delta"
	ColWeight     = "weight"
)

// Sort selects a column and direction for a holdings table.
type Sort struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// Toggle returns the next sort state after the user picks column: the same
// column flips direction, a new column starts ascending.
func (s Sort) Toggle(column string) Sort {
	if s.Column == column {
		return Sort{Column: column, Desc: !s.Desc}
	}
	return Sort{Column: column}
}

// sortKey is a comparable cell. A nil number always sorts last.
type sortKey struct {
	missing bool
	num     float64
	str     string
}

func num(v float64) sortKey { return sortKey{num: v} }
func str(v string) sortKey  { return sortKey{str: strings.ToLower(v)} }

func optNum(v *float64) sortKey {
	if v == nil {
		return sortKey{missing: true}
	}
	return sortKey{num: *v}
}

func sortRows[T any](rows []T, key func(T) sortKey, desc bool) {
	slices.SortStableFunc(rows, func(a, b T) int {
		ka, kb := key(a), key(b)
		switch {
		case ka.missing && kb.missing:
			return 0
		case ka.missing:
			return 1
		case kb.missing:
			return -1
		}
		c := cmp.Compare(ka.str, kb.str)
		if c == 0 {
			c = cmp.Compare(ka.num, kb.num)
		}
		if desc {
			return -c
		}
		return c
	})
}

// EarningsBadge flags an earnings report within the next week.
type EarningsBadge struct {
	DaysUntil int    `json:"days_until"`
	Urgency   string `json:"urgency"`
	Tooltip   string `json:"tooltip"`
}

// StockRow is a display-ready stock holding.
type StockRow struct {
	Symbol      string   `json:"symbol"`
	Shares      float64  `json:"shares"`
	Price       float64  `json:"price"`
	Value       float64  `json:"value"`
	AvgCost     *float64 `json:"avg_cost"`
	CostBasis   *float64 `json:"cost_basis"`
	PL          *float64 `json:"pl"`
	PLPct       *float64 `json:"pl_pct"`
	Allocation  float64  `json:"allocation"`
	Range52W    *float64 `json:"range_52w"`
	IsIndexFund bool     `json:"is_index_fund"`

	Earnings *EarningsBadge `json:"earnings,omitempty"`

	SharesText     string `json:"shares_text"`
	PriceText      string `json:"price_text"`
	ValueText      string `json:"value_text"`
	AvgCostText    string `json:"avg_cost_text"`
	PLText         string `json:"pl_text"`
	PLPctText      string `json:"pl_pct_text"`
	AllocationText string `json:"allocation_text"`
	RangeText      string `json:"range_text"`
}

// StockRows returns the account's stock holdings as sorted rows.
func (s *Snapshot) StockRows(accountID string, order Sort) []StockRow {
	stocks := s.Stocks[accountID]
	var total float64
	for _, p := range stocks {
		total += p.MarketValue
	}

	rows := make([]StockRow, 0, len(stocks))
	for _, p := range stocks {
		r := StockRow{
			Symbol:      p.Symbol,
			Shares:      p.Shares,
			Price:       p.Price,
			Value:       p.MarketValue,
			IsIndexFund: symbols.IsIndexFund(p.Symbol),
			SharesText:  humanize.FormatFloat("#,###.####", p.Shares),
			PriceText:   Money(p.Price),
			ValueText:   Money(p.MarketValue),
			AvgCostText: NotAvailable,
			PLText:      NotAvailable,
			PLPctText:   NotAvailable,
			RangeText:   NotAvailable,
		}
		if total > 0 {
			r.Allocation = p.MarketValue / total * 100
		}
		r.AllocationText = Percent(r.Allocation)
		if p.CostBasisReliable {
			r.AvgCost = ptr(p.AvgBuyPrice)
			r.CostBasis = ptr(p.CostBasis)
			r.PL = p.UnrealizedPL
			r.AvgCostText = Money(p.AvgBuyPrice)
			r.PLText = Money(*p.UnrealizedPL)
			if pct, ok := p.PLPct(); ok {
				r.PLPct = ptr(pct)
				r.PLPctText = Percent(pct)
			}
		}
		if rng, ok := s.Ranges[p.Symbol]; ok {
			r.Range52W = ptr(rng)
			r.RangeText = fmt.Sprintf("%.0f%%", rng)
		}
		if e, ok := s.Earnings[p.Symbol]; ok {
			r.Earnings = earningsBadge(e)
		}
		rows = append(rows, r)
	}

	sortRows(rows, func(r StockRow) sortKey {
		switch order.Column {
		case ColShares:
			return num(r.Shares)
		case ColPrice:
			return num(r.Price)
		case ColValue:
			return num(r.Value)
		case ColCostBasis:
			return optNum(r.CostBasis)
		case ColPL:
			return optNum(r.PL)
		case ColPLPct:
			return optNum(r.PLPct)
		case ColAllocation:
			return num(r.Allocation)
		case ColRange:
			return optNum(r.Range52W)
		}
		return str(r.Symbol)
	}, order.Desc)
	return rows
}

func earningsBadge(e EarningsInfo) *EarningsBadge {
	if e.DaysUntil < 0 || e.DaysUntil > 7 {
		return nil
	}
	b := &EarningsBadge{DaysUntil: e.DaysUntil, Urgency: "soon"}
	if e.DaysUntil <= 3 {
		b.Urgency = "imminent"
	}
	timing := ""
	if e.Timing != "" {
		timing = " (" + e.Timing + ")"
	}
	days := "days"
	if e.DaysUntil == 1 {
		days = "day"
	}
	b.Tooltip = fmt.Sprintf("Earnings %s%s - in %d %s", e.DateString(), timing, e.DaysUntil, days)
	return b
}

// OptionRow is a display-ready option holding.
type OptionRow struct {
	Symbol      string     `json:"symbol"`
	Strike      float64    `json:"strike"`
	Type        OptionType `json:"option_type"`
	Side        Side       `json:"side"`
	Contracts   float64    `json:"contracts"`
	DTE         int        `json:"dte"`
	Underlying  float64    `json:"underlying"`
	Delta       float64    `json:"delta"`
	CostBasis   float64    `json:"cost_basis"`
	Value       float64    `json:"value"`
	PL          float64    `json:"pl"`
	PLPct       *float64   `json:"pl_pct"`
	Weight      float64    `json:"weight"`
	ITM         bool       `json:"is_itm"`
	IsIndexFund bool       `json:"is_index_fund"`

	StrikeText     string `json:"strike_text"`
	UnderlyingText string `json:"underlying_text"`
	DeltaText      string `json:"delta_text"`
	CostBasisText  string `json:"cost_basis_text"`
	ValueText      string `json:"value_text"`
	PLText         string `json:"pl_text"`
	PLPctText      string `json:"pl_pct_text"`
	WeightText     string `json:"weight_text"`
}

// OptionRows returns the account's option holdings as sorted rows. Weight is
// the share of total absolute exposure across stocks and options.
func (s *Snapshot) OptionRows(accountID string, order Sort) []OptionRow {
	opts := s.Options[accountID]
	var exposure float64
	for _, p := range s.Stocks[accountID] {
		exposure += math.Abs(p.MarketValue)
	}
	for _, o := range opts {
		exposure += math.Abs(o.SignedExposure)
	}

	rows := make([]OptionRow, 0, len(opts))
	for _, o := range opts {
		r := OptionRow{
			Symbol:         o.Symbol,
			Strike:         o.Strike,
			Type:           o.Type,
			Side:           o.Side,
			Contracts:      o.Contracts,
			DTE:            o.DTE,
			Underlying:     o.UnderlyingPrice,
			Delta:          o.Delta,
			CostBasis:      o.CostBasis,
			Value:          o.CurrentValue,
			PL:             o.PL,
			ITM:            o.ITM,
			IsIndexFund:    symbols.IsIndexFund(o.Symbol),
			StrikeText:     Money(o.Strike),
			UnderlyingText: Money(o.UnderlyingPrice),
			DeltaText:      fmt.Sprintf("%.3f", o.Delta),
			CostBasisText:  Money(o.CostBasis),
			ValueText:      Money(o.CurrentValue),
			PLText:         Money(o.PL),
			PLPctText:      NotAvailable,
		}
		if pct, ok := o.PLPct(); ok {
			r.PLPct = ptr(pct)
			r.PLPctText = Percent(pct)
		}
		if exposure > 0 {
			r.Weight = math.Abs(o.SignedExposure) / exposure * 100
		}
		r.WeightText = Percent(r.Weight)
		rows = append(rows, r)
	}

	sortRows(rows, func(r OptionRow) sortKey {
		switch order.Column {
		case ColStrike:
			return num(r.Strike)
		case ColDTE:
			return num(float64(r.DTE))
		case ColValue:
			return num(r.Value)
		case ColPL:
			return num(r.PL)
		case ColPLPct:
			return optNum(r.PLPct)
		case ColDelta:
			return num(r.Delta)
		case ColWeight:
			return num(r.Weight)
		}
		return str(r.Symbol)
	}, order.Desc)
	return rows
}

// Summary is the headline figures for one account.
type Summary struct {
	AccountID      string   `json:"account_id"`
	DisplayName    string   `json:"display_name"`
	Balance        float64  `json:"balance"`
	DailyChange    float64  `json:"daily_change"`
	DailyChangePct float64  `json:"daily_change_pct"`
	Cash           float64  `json:"cash"`
	BuyingPower    float64  `json:"buying_power"`
	BenchmarkPct   *float64 `json:"benchmark_pct"`
	// Alpha is the account's daily percent minus the benchmark's.
	Alpha            *float64 `json:"alpha"`
	BeatingBenchmark bool     `json:"beating_benchmark"`

	BalanceText     string `json:"balance_text"`
	DailyChangeText string `json:"daily_change_text"`
	CashText        string `json:"cash_text"`
	BuyingPowerText string `json:"buying_power_text"`
	BenchmarkText   string `json:"benchmark_text"`
}

// Summary returns the headline figures for accountID. Balance is the stock
// market value plus signed option exposure.
func (s *Snapshot) Summary(accountID string) (Summary, bool) {
	acc, ok := s.Account(accountID)
	if !ok {
		return Summary{}, false
	}
	var balance float64
	for _, p := range s.Stocks[accountID] {
		balance += p.MarketValue
	}
	for _, o := range s.Options[accountID] {
		balance += o.SignedExposure
	}
	change, pct := acc.DailyChange()

	sum := Summary{
		AccountID:       acc.ID,
		DisplayName:     acc.DisplayName,
		Balance:         balance,
		DailyChange:     change,
		DailyChangePct:  pct,
		Cash:            acc.Cash,
		BuyingPower:     acc.BuyingPower,
		BenchmarkPct:    s.BenchmarkChangePct,
		BalanceText:     Money(balance),
		DailyChangeText: SignedMoney(change) + " (" + SignedPercent(pct) + ")",
		CashText:        Money(acc.Cash),
		BuyingPowerText: Money(acc.BuyingPower),
		BenchmarkText:   NotAvailable,
	}
	if s.BenchmarkChangePct != nil {
		alpha := pct - *s.BenchmarkChangePct
		sum.Alpha = &alpha
		sum.BeatingBenchmark = alpha >= 0
		sum.BenchmarkText = SignedPercent(alpha) + " vs S&P"
	}
	return sum, true
}

// TreemapNode is one tile of the holdings treemap.
type TreemapNode struct {
	Label string   `json:"label"`
	Size  float64  `json:"size"`
	PLPct *float64 `json:"pl_pct"`
	Color string   `json:"color"`
}

// Treemap returns one tile per stock and one aggregated tile per option
// underlying, labelled "SYM (Opt)".
func (s *Snapshot) Treemap(accountID string) []TreemapNode {
	var nodes []TreemapNode
	for _, p := range s.Stocks[accountID] {
		n := TreemapNode{Label: p.Symbol, Size: math.Abs(p.MarketValue)}
		if pct, ok := p.PLPct(); ok {
			n.PLPct = ptr(pct)
		}
		n.Color = PLColor(n.PLPct)
		nodes = append(nodes, n)
	}

	type agg struct{ value, cost, pl float64 }
	byUnderlying := make(map[string]*agg)
	var order []string
	for _, o := range s.Options[accountID] {
		a, ok := byUnderlying[o.Symbol]
		if !ok {
			a = &agg{}
			byUnderlying[o.Symbol] = a
			order = append(order, o.Symbol)
		}
		a.value += math.Abs(o.SignedExposure)
		a.cost += o.CostBasis
		a.pl += o.PL
	}
	for _, sym := range order {
		a := byUnderlying[sym]
		n := TreemapNode{Label: sym + " (Opt)", Size: a.value}
		if a.cost > 0 {
			n.PLPct = ptr(a.pl / a.cost * 100)
		}
		n.Color = PLColor(n.PLPct)
		nodes = append(nodes, n)
	}
	return nodes
}

var (
	plNeutral   = [3]float64{128, 128, 128}
	plGreenBase = [3]float64{200, 230, 201}
	plGreenDeep = [3]float64{27, 94, 32}
	plRedBase   = [3]float64{255, 210, 215}
	plRedDeep   = [3]float64{127, 0, 0}
)

// PLColor maps a P/L percent to an rgb() colour. Intensity is clamped at
// plus or minus 100%; nil is neutral grey.
func PLColor(pct *float64) string {
	if pct == nil {
		return rgb(plNeutral)
	}
	clamped := math.Max(-100, math.Min(100, *pct))
	intensity := math.Abs(clamped) / 100
	base, deep := plGreenBase, plGreenDeep
	if *pct < 0 {
		base, deep = plRedBase, plRedDeep
	}
	var c [3]float64
	for i := range c {
		c[i] = base[i] - (base[i]-deep[i])*intensity
	}
	return rgb(c)
}

func rgb(c [3]float64) string {
	return fmt.Sprintf("rgb(%d, %d, %d)", int(c[0]), int(c[1]), int(c[2]))
}

// SectorSlice is one sector of an account's exposure chart.
type SectorSlice struct {
	Sector string  `json:"sector"`
	Value  float64 `json:"value"`
	Pct    float64 `json:"pct"`
	Color  string  `json:"color"`
}

// MaxSectorSlices is how many sectors are shown before folding into "Other".
const MaxSectorSlices = 6

var sectorColors = map[string]string{
	"Consumer Cyclical":      "#EF7622",
	"Consumer Discretionary": "#EF7622",
	"Financial Services":     "#F59E0B",
	"Financials":             "#F59E0B",
	"Real Estate":            "#D97706",
	"Basic Materials":        "#B45309",
	"Materials":              "#B45309",
	"Technology":             "#1F55A5",
	"Information Technology": "#1F55A5",
	"Communication Services": "#3B82F6",
	"Energy":                 "#0EA5E9",
	"Industrials":            "#6366F1",
	"Healthcare":             "#518428",
	"Consumer Defensive":     "#22C55E",
	"Consumer Staples":       "#22C55E",
	"Utilities":              "#10B981",
}

const otherSectorColor = "#6B7280"

// SectorExposure returns the top sectors by value with the remainder
// folded into "Other".
func (s *Snapshot) SectorExposure(accountID string) []SectorSlice {
	sectors := s.Sectors[accountID]
	if len(sectors) == 0 {
		return nil
	}
	out := make([]SectorSlice, 0, len(sectors))
	var total float64
	for name, v := range sectors {
		out = append(out, SectorSlice{Sector: name, Value: v})
		total += v
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Sector < out[j].Sector
	})
	if len(out) > MaxSectorSlices {
		var other float64
		for _, sl := range out[MaxSectorSlices:] {
			other += sl.Value
		}
		out = append(out[:MaxSectorSlices], SectorSlice{Sector: "Other", Value: other})
	}
	for i := range out {
		if total > 0 {
			out[i].Pct = out[i].Value / total * 100
		}
		out[i].Color = otherSectorColor
		if c, ok := sectorColors[out[i].Sector]; ok {
			out[i].Color = c
		}
	}
	return out
}

// DeltaRow is the net share-equivalent exposure for one underlying.
type DeltaRow struct {
	Symbol       string  `json:"symbol"`
	StockDelta   float64 `json:"stock_delta"`
	OptionsDelta float64 `json:"options_delta"`
	NetDelta     float64 `json:"net_delta"`
	Bullish      bool    `json:"is_bullish"`
	IsIndexFund  bool    `json:"is_index_fund"`
	// BarWidth is |net| relative to the largest |net|, 0..100.
	BarWidth float64 `json:"bar_width"`
}

// DeltaExposure covers only symbols that have options, sorted by absolute
// net delta, largest first.
func (s *Snapshot) DeltaExposure(accountID string) []DeltaRow {
	byPos := make(map[string]int)
	var rows []DeltaRow
	for _, o := range s.Options[accountID] {
		if o.Symbol == "" {
			continue
		}
		i, ok := byPos[o.Symbol]
		if !ok {
			i = len(rows)
			byPos[o.Symbol] = i
			rows = append(rows, DeltaRow{Symbol: o.Symbol, IsIndexFund: symbols.IsIndexFund(o.Symbol)})
		}
		rows[i].OptionsDelta += o.PositionDelta()
	}
	if len(rows) == 0 {
		return nil
	}
	for _, p := range s.Stocks[accountID] {
		if i, ok := byPos[p.Symbol]; ok {
			rows[i].StockDelta += p.Shares
		}
	}

	var maxAbs float64
	for i := range rows {
		rows[i].NetDelta = rows[i].StockDelta + rows[i].OptionsDelta
		rows[i].Bullish = rows[i].NetDelta >= 0
		maxAbs = math.Max(maxAbs, math.Abs(rows[i].NetDelta))
	}
	for i := range rows {
		if maxAbs > 0 {
			rows[i].BarWidth = math.Abs(rows[i].NetDelta) / maxAbs * 100
		}
	}
	slices.SortStableFunc(rows, func(a, b DeltaRow) int {
		return cmp.Compare(math.Abs(b.NetDelta), math.Abs(a.NetDelta))
	})
	return rows
}

// Partition splits rows into index funds and individual stocks using isFund.
func Partition[T any](rows []T, isFund func(T) bool) (funds, individual []T) {
	for _, r := range rows {
		if isFund(r) {
			funds = append(funds, r)
		} else {
			individual = append(individual, r)
		}
	}
	return funds, individual
}

// Money formats v as dollars with two decimals, e.g. "-$1,234.50".
func Money(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// SignedMoney is Money with an explicit "+" for non-negative values.
func SignedMoney(v float64) string {
	if v >= 0 {
		return "+" + Money(v)
	}
	return Money(v)
}

// Percent formats v with two decimals and a percent sign.
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// SignedPercent is Percent with an explicit "+" for non-negative values.
func SignedPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

func ptr(v float64) *float64 { return &v }
