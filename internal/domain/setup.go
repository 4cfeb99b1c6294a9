package domain

import "time"

// Direction is the side of a fade: Long fades an extension below the IB low,
// Short fades an extension above the IB high.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// SetupState tracks a fade candidate through the detection state machine.
type SetupState string

const (
	SetupIdle         SetupState = "idle"
	SetupTriggered    SetupState = "triggered"
	SetupAwaitingConf SetupState = "awaiting_confirmation"
	SetupScored       SetupState = "scored"
	SetupAuthorized   SetupState = "authorized"
	SetupDiscarded    SetupState = "discarded"
)

// DiscardReason explains why a candidate never became a trade. Discards are
// ordinary outcomes of the decision process, not errors.
type DiscardReason string

const (
	DiscardNarrowIB      DiscardReason = "narrow_ib"
	DiscardOpenDrive     DiscardReason = "open_drive"
	DiscardOutsideWindow DiscardReason = "outside_entry_window"
	DiscardExtensionCap  DiscardReason = "extension_cap_exceeded"
	DiscardLowScore      DiscardReason = "low_score"
	DiscardLowRR         DiscardReason = "insufficient_rr"
	DiscardRiskDenied    DiscardReason = "risk_governor_denied"
	DiscardNoConfirm     DiscardReason = "no_confirmation"
)

// Setup is a scored fade candidate. TriggerLevel is the IB extreme whose
// break created the candidate; EntryZone bounds the optimal extension band;
// TargetLevel is the developing POC at evaluation time.
type Setup struct {
	ID                string
	Symbol            string
	Direction         Direction
	State             SetupState
	TriggerLevel      float64
	ExtensionMultiple float64
	EntryZoneLow      float64
	EntryZoneHigh     float64
	StopLevel         float64
	TargetLevel       float64
	Score             int // 0..10
	RiskReward        float64
	SizeFraction      float64 // 1.0, 0.75, or 0.5 by score tier
	Confirmations     []string
	Discard           DiscardReason
	TriggeredAt       time.Duration // session-relative
	ScoredAt          time.Duration
}

// EntryZoneMid returns the midpoint of the entry zone.
func (s Setup) EntryZoneMid() float64 {
	return (s.EntryZoneLow + s.EntryZoneHigh) / 2
}

// InEntryZone reports whether a fill price lies inside the entry band.
func (s Setup) InEntryZone(price float64) bool {
	return price >= s.EntryZoneLow && price <= s.EntryZoneHigh
}
