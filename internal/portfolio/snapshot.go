package portfolio

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/newthinker/stonks/internal/symbols"
)

// Outcome is the enrichment result for one symbol.
type Outcome int

const (
	// OutcomePending means enrichment has not run for the symbol yet.
	OutcomePending Outcome = iota
	// OutcomeOK means a 52-week range was produced.
	OutcomeOK
	// OutcomeFailed means the provider failed; the symbol is retried.
	OutcomeFailed
	// OutcomeUnavailable means the data legitimately does not exist, such as
	// a listing younger than its first full range. Not retried.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnavailable:
		return "unavailable"
	}
	return "pending"
}

// MarshalText renders the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Completeness levels of a snapshot. Each retry adds one above Enriched.
const (
	CompletenessPositions = 1
	CompletenessEnriched  = 2
)

// EarningsInfo is the next earnings report relative to the sync.
type EarningsInfo struct {
	DaysUntil int       `json:"days_until"`
	Date      time.Time `json:"date"`
	Timing    string    `json:"timing,omitempty"`
}

// DateString formats the date as "Jan 02, 2006".
func (e EarningsInfo) DateString() string {
	return e.Date.Format("Jan 02, 2006")
}

// Snapshot is an immutable view of the whole portfolio. It is replaced
// wholesale; callers that need to modify one must Clone it first.
type Snapshot struct {
	// Generation identifies the full sync that produced the snapshot.
	Generation uint64 `json:"generation"`
	// Completeness grows as enrichment and retries land.
	Completeness int       `json:"completeness"`
	FetchedAt    time.Time `json:"fetched_at"`

	// Accounts keeps brokerage listing order.
	Accounts []Account                  `json:"accounts"`
	Stocks   map[string][]StockPosition  `json:"stocks"`
	Options  map[string][]OptionPosition `json:"options"`

	// BenchmarkChangePct is nil when the benchmark fetch failed.
	BenchmarkChangePct *float64 `json:"benchmark_change_pct"`

	// Sectors maps account id to sector to market value, individual stocks only.
	Sectors map[string]map[string]float64 `json:"sectors"`
	// SymbolSectors holds the sector per symbol used to build Sectors.
	SymbolSectors map[string]string `json:"symbol_sectors"`
	// Ranges maps symbol to its 0..100 position in the 52-week range.
	Ranges   map[string]float64      `json:"ranges"`
	Earnings map[string]EarningsInfo `json:"earnings"`
	Outcomes map[string]Outcome      `json:"outcomes"`
}

// NewSnapshot builds a phase-one snapshot from account results.
func NewSnapshot(generation uint64, fetchedAt time.Time, results []AccountResult, benchmark *float64) *Snapshot {
	s := &Snapshot{
		Generation:         generation,
		Completeness:       CompletenessPositions,
		FetchedAt:          fetchedAt,
		Stocks:             make(map[string][]StockPosition, len(results)),
		Options:            make(map[string][]OptionPosition, len(results)),
		BenchmarkChangePct: benchmark,
		Sectors:            make(map[string]map[string]float64),
		SymbolSectors:      make(map[string]string),
		Ranges:             make(map[string]float64),
		Earnings:           make(map[string]EarningsInfo),
		Outcomes:           make(map[string]Outcome),
	}
	for _, r := range results {
		s.Accounts = append(s.Accounts, r.Account)
		s.Stocks[r.Account.ID] = r.Stocks
		s.Options[r.Account.ID] = r.Options
	}
	return s
}

// Clone returns a copy whose maps can be modified independently. Position
// slices are shared; they are never modified in place.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Accounts = slices.Clone(s.Accounts)
	c.Stocks = maps.Clone(s.Stocks)
	c.Options = maps.Clone(s.Options)
	c.Sectors = make(map[string]map[string]float64, len(s.Sectors))
	for acc, m := range s.Sectors {
		c.Sectors[acc] = maps.Clone(m)
	}
	c.SymbolSectors = maps.Clone(s.SymbolSectors)
	c.Ranges = maps.Clone(s.Ranges)
	c.Earnings = maps.Clone(s.Earnings)
	c.Outcomes = maps.Clone(s.Outcomes)
	return &c
}

// Account returns the account with id.
func (s *Snapshot) Account(id string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// Symbols returns the sorted distinct stock and option-underlying symbols.
func (s *Snapshot) Symbols() []string {
	var all []string
	for _, stocks := range s.Stocks {
		for _, p := range stocks {
			all = append(all, p.Symbol)
		}
	}
	for _, opts := range s.Options {
		for _, o := range opts {
			all = append(all, o.Symbol)
		}
	}
	return symbols.Unique(all)
}

// SymbolAccounts maps each symbol to the display names of the accounts
// holding it, in account order.
func (s *Snapshot) SymbolAccounts() map[string][]string {
	out := make(map[string][]string)
	for _, a := range s.Accounts {
		seen := make(map[string]bool)
		add := func(sym string) {
			if sym == "" || seen[sym] {
				return
			}
			seen[sym] = true
			out[sym] = append(out[sym], a.DisplayName)
		}
		for _, p := range s.Stocks[a.ID] {
			add(p.Symbol)
		}
		for _, o := range s.Options[a.ID] {
			add(o.Symbol)
		}
	}
	return out
}

// Failed returns the sorted symbols whose last enrichment failed.
func (s *Snapshot) Failed() []string {
	var out []string
	for sym, o := range s.Outcomes {
		if o == OutcomeFailed {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Enriched reports whether secondary analytics have been applied.
func (s *Snapshot) Enriched() bool {
	return s.Completeness >= CompletenessEnriched
}

// RebuildSectors recomputes per-account sector exposure from SymbolSectors.
// Index funds are excluded; stocks without a known sector count as "Unknown".
func (s *Snapshot) RebuildSectors() {
	s.Sectors = make(map[string]map[string]float64, len(s.Accounts))
	for _, a := range s.Accounts {
		acc := make(map[string]float64)
		for _, p := range s.Stocks[a.ID] {
			if p.Symbol == "" || symbols.IsIndexFund(p.Symbol) {
				continue
			}
			sector := s.SymbolSectors[p.Symbol]
			if sector == "" {
				sector = "Unknown"
			}
			acc[sector] += p.MarketValue
		}
		s.Sectors[a.ID] = acc
	}
}
