package domain

// SessionContext carries the reference figures the engine needs before the
// first bar of a session: prior-day levels from the preceding profile, the
// 20-day average Initial Balance range, and the volatility regime. It is
// supplied externally and is read-only for the life of the session.
type SessionContext struct {
	Symbol       string
	PriorDayHigh float64
	PriorDayLow  float64
	PriorDayPOC  float64
	PriorDayVAH  float64
	PriorDayVAL  float64
	AvgIB20      float64 // 20-day average IB range, must be > 0
	VIX          float64
}

// Valid reports whether the context satisfies its invariants.
func (sc SessionContext) Valid() bool {
	return sc.AvgIB20 > 0 && sc.PriorDayHigh >= sc.PriorDayLow
}

// WidthClass classifies the Initial Balance range against the 20-day average.
type WidthClass string

const (
	WidthNarrow WidthClass = "narrow"
	WidthMedium WidthClass = "medium"
	WidthWide   WidthClass = "wide"
)

// OpenType classifies the price action of the opening auction. Open Drive
// sessions carry high trend-day probability and are never faded.
type OpenType string

const (
	OpenDrive            OpenType = "open_drive"
	OpenTestDrive        OpenType = "open_test_drive"
	OpenRejectionReverse OpenType = "open_rejection_reverse"
	OpenAuction          OpenType = "open_auction"
)

// IBSnapshot is the finalized Initial Balance for a session. It is produced
// exactly once, at IB-window close, and never mutated afterwards.
type IBSnapshot struct {
	High       float64
	Low        float64
	Range      float64 // High - Low, always >= 0
	Midpoint   float64
	Volume     float64
	WidthClass WidthClass
	OpenType   OpenType
}

// Extension returns how far price sits beyond the IB extreme in the given
// direction, expressed in multiples of the IB range. Zero when price is still
// inside the balance or the range is degenerate.
func (ib IBSnapshot) Extension(price float64, dir Direction) float64 {
	if ib.Range <= 0 {
		return 0
	}
	var ext float64
	switch dir {
	case Long:
		ext = ib.Low - price
	case Short:
		ext = price - ib.High
	}
	if ext <= 0 {
		return 0
	}
	return ext / ib.Range
}

// SessionSummary is the end-of-session record persisted and archived once the
// forced flatten has run: the finalized IB, the final developing profile
// figures, and the day's risk accounting.
type SessionSummary struct {
	Symbol      string
	Date        string // session date, YYYY-MM-DD
	IB          IBSnapshot
	FinalPOC    float64
	FinalVAH    float64
	FinalVAL    float64
	TradesTaken int
	Wins        int
	Losses      int
	RealizedR   float64
}
