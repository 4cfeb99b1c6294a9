package domain

import "time"

// PositionState tracks a position through the management state machine.
type PositionState string

const (
	PositionPending         PositionState = "pending"
	PositionOpen            PositionState = "open"
	PositionPartiallyScaled PositionState = "partially_scaled"
	PositionClosed          PositionState = "closed"
)

// CloseReason records why a position left the book.
type CloseReason string

const (
	CloseStopHit       CloseReason = "stop_hit"
	CloseTargetHit     CloseReason = "target_hit"
	CloseExtensionCap  CloseReason = "extension_cap_exceeded"
	CloseVolumeSurge   CloseReason = "continuation_volume_surge"
	ClosePriorDayBreak CloseReason = "prior_day_level_break"
	CloseRegimeChange  CloseReason = "regime_change"
	CloseSessionEnd    CloseReason = "session_end"
	CloseExternal      CloseReason = "external_cancel"
)

// Position is a live fade trade owned by the TradeManager. StopLevel and
// TargetLevel are mutable: the stop walks from initial to breakeven to a
// trail, and the target re-anchors to the developing POC on every profile
// update. RemainingFraction shrinks as the position scales out.
type Position struct {
	ID                string
	SetupID           string
	Symbol            string
	SessionDate       string // YYYY-MM-DD
	Direction         Direction
	State             PositionState
	EntryPrice        float64
	SizeFraction      float64 // fraction of full size at entry
	RemainingFraction float64 // in (0,1] while open
	StopLevel         float64
	InitialStop       float64
	TargetLevel       float64
	AtBreakeven       bool
	OpenedAt          time.Duration // session-relative
	ClosedAt          time.Duration
	ExitPrice         float64
	RealizedR         float64
	CloseReason       CloseReason
}

// UnrealizedR returns the open profit at the given mark, in R units
// (multiples of the initial stop distance), signed by direction.
func (p Position) UnrealizedR(mark float64) float64 {
	risk := p.EntryPrice - p.InitialStop
	if p.Direction == Short {
		risk = p.InitialStop - p.EntryPrice
	}
	if risk <= 0 {
		return 0
	}
	if p.Direction == Long {
		return (mark - p.EntryPrice) / risk
	}
	return (p.EntryPrice - mark) / risk
}
