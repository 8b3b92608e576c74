package strategyrun

import "context"

// top100NSE is the fixed NSE allow-list used when a run config sets
// include_all_nse. BSE has no equivalent static list; an
// include_all_bse run resolves its universe from the ingester
// adapter's GetSymbols instead.
var top100NSE = []string{
	"RELIANCE", "TCS", "HDFCBANK", "ICICIBANK", "BHARTIARTL",
	"INFY", "SBIN", "ITC", "HINDUNILVR", "LT",
	"BAJFINANCE", "HCLTECH", "MARUTI", "AXISBANK", "SUNPHARMA",
	"KOTAKBANK", "TITAN", "ONGC", "TATAMOTORS", "ADANIENT",
	"NTPC", "ASIANPAINT", "POWERGRID", "M&M", "ULTRACEMCO",
	"TATASTEEL", "BAJAJFINSV", "COALINDIA", "HINDALCO", "WIPRO",
	"JSWSTEEL", "IOC", "ADANIPORTS", "NESTLEIND", "GRASIM",
	"TECHM", "BPCL", "DRREDDY", "DIVISLAB", "BRITANNIA",
	"CIPLA", "EICHERMOT", "APOLLOHOSP", "HEROMOTOCO", "TATACONSUM",
	"SBILIFE", "BAJAJ-AUTO", "HDFCLIFE", "INDUSINDBK", "GODREJCP",
	"DABUR", "ADANIGREEN", "VEDL", "PIDILITIND", "SIEMENS",
	"HAVELLS", "DLF", "BANKBARODA", "AMBUJACEM", "GAIL",
	"SHREECEM", "ICICIPRULI", "ICICIGI", "TRENT", "TORNTPHARM",
	"JINDALSTEL", "PFC", "RECLTD", "CHOLAFIN", "INDIGO",
	"BHEL", "ABB", "CANBK", "TATAPOWER", "HAL",
	"IRFC", "ADANIPOWER", "BEL", "MARICO", "PNB",
	"ZOMATO", "UNIONBANK", "IOB", "IDBI", "NHPC",
	"IRCTC", "POLYCAB", "PERSISTENT", "MAXHEALTH", "MPHASIS",
	"COLPAL", "NAUKRI", "BERGEPAINT", "AUROPHARMA", "LUPIN",
	"BOSCHLTD", "HDFCAMC", "MUTHOOTFIN", "SBICARD", "COFORGE",
}

// Universe resolves the exchange-specific symbol list a run's config
// asks for. includeAll only has a static allow-list for NSE; all other
// includeAll requests fall back to the ingester adapter.
func (w *Worker) Universe(ctx context.Context, exchange string, explicit []string, includeAll bool) ([]string, error) {
	if !includeAll {
		return explicit, nil
	}
	if exchange == "NSE" {
		return top100NSE, nil
	}
	return w.ingester.GetSymbols(ctx, exchange)
}
