package domain

// DailyRiskState is the per-trading-day risk ledger. One instance exists per
// day (or one shared across symbols when risk is aggregated); it is reset at
// session start and mutated only by the RiskGovernor.
type DailyRiskState struct {
	Date              string // YYYY-MM-DD
	CumulativeR       float64
	ConsecutiveLosses int
	TradesToday       int
	Wins              int
	Losses            int
}

// Record applies one closed trade's realized R to the ledger.
func (d *DailyRiskState) Record(realizedR float64) {
	d.TradesToday++
	d.CumulativeR += realizedR
	if realizedR < 0 {
		d.Losses++
		d.ConsecutiveLosses++
	} else {
		d.Wins++
		d.ConsecutiveLosses = 0
	}
}
