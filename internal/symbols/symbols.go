// Package symbols classifies and normalizes ticker symbols.
package symbols

import (
	"sort"
	"strings"
)

// indexFunds lists broad index funds and sector ETFs. Membership is static:
// these tickers are grouped apart from individual stocks and are excluded
// from sector breakdowns.
var indexFunds = map[string]struct{}{
	// S&P 500 / total market
	"VOO": {}, "SPY": {}, "IVV": {}, "SPLG": {}, "VTI": {}, "ITOT": {}, "SPTM": {},
	// Nasdaq / tech
	"QQQ": {}, "QQQM": {}, "VGT": {}, "XLK": {},
	// Style
	"VUG": {}, "VTV": {}, "IWF": {}, "IWD": {},
	// Size
	"IWM": {}, "VB": {}, "SCHA": {}, "VO": {}, "IJH": {}, "SCHM": {}, "DIA": {},
	// Semiconductors
	"SMH": {}, "SOXX": {},
	// Sector SPDRs and Vanguard equivalents
	"XLF": {}, "VFH": {}, "XLE": {}, "VDE": {}, "XLV": {}, "VHT": {}, "XLI": {}, "VIS": {},
	"XLB": {}, "VAW": {}, "XLU": {}, "VPU": {}, "XLP": {}, "VDC": {}, "XLY": {}, "VCR": {},
	"XLRE": {}, "VNQ": {}, "XLC": {},
	// International
	"VEA": {}, "IEFA": {}, "EFA": {}, "VWO": {}, "IEMG": {}, "EEM": {}, "VXUS": {},
	// Bonds
	"BND": {}, "AGG": {}, "TLT": {}, "IEF": {}, "SHY": {},
	// Thematic
	"ARKK": {}, "ARKW": {}, "ARKF": {}, "ARKG": {}, "ARKQ": {}, "FINX": {}, "SPMO": {}, "SHLD": {},
	// Leveraged
	"TQQQ": {}, "SQQQ": {}, "SPXL": {}, "SPXS": {}, "UPRO": {},
}

// IsIndexFund reports whether symbol is a known index fund or ETF.
func IsIndexFund(symbol string) bool {
	_, ok := indexFunds[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Partition splits symbols into index funds and individual stocks,
// preserving input order.
func Partition(syms []string) (funds, stocks []string) {
	for _, s := range syms {
		if IsIndexFund(s) {
			funds = append(funds, s)
		} else {
			stocks = append(stocks, s)
		}
	}
	return funds, stocks
}

// NormalizeForYahoo converts a brokerage ticker to the market-data form:
// the "$" prefix is dropped and share-class dots become dashes (BRK.B -> BRK-B).
func NormalizeForYahoo(symbol string) string {
	s := strings.TrimSpace(strings.ToUpper(symbol))
	s = strings.TrimPrefix(s, "$")
	return strings.ReplaceAll(s, ".", "-")
}

var warrantSuffixes = []string{".WS", "-WS", "/WS"}

// warrantBases are listings known to trade derivative classes under a
// one-letter suffix (OPENW, OPENZ, OPENL).
var warrantBases = map[string]struct{}{
	"OPEN": {},
}

// IsWarrantOrUnit reports whether symbol looks like a warrant, unit or right.
// Such instruments have no earnings calendar and are skipped for earnings
// lookups.
func IsWarrantOrUnit(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suf := range warrantSuffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	if len(s) >= 5 {
		if _, ok := warrantBases[s[:len(s)-1]]; ok {
			switch s[len(s)-1] {
			case 'W', 'Z', 'L', 'U', 'R':
				return true
			}
		}
	}
	return false
}

// Unique returns the distinct non-empty symbols in sorted order.
func Unique(syms []string) []string {
	seen := make(map[string]struct{}, len(syms))
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
