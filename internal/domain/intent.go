package domain

import "time"

// IntentType enumerates the order intents the engine can emit. Intents are
// abstract instructions for the external execution collaborator; the engine
// never routes orders itself.
type IntentType string

const (
	IntentEnter    IntentType = "enter"
	IntentMoveStop IntentType = "move_stop"
	IntentScaleOut IntentType = "scale_out"
	IntentReassess IntentType = "reassess"
	IntentExit     IntentType = "exit"
)

// Intent is a single instruction emitted by the TradeManager. The sequence of
// intents for one position fully describes its lifecycle.
type Intent struct {
	ID           string        `json:"id"`
	Type         IntentType    `json:"type"`
	PositionID   string        `json:"position_id"`
	Symbol       string        `json:"symbol"`
	SessionDate  string        `json:"session_date"` // YYYY-MM-DD
	Direction    Direction     `json:"direction"`
	Price        float64       `json:"price"`
	StopLevel    float64       `json:"stop_level,omitempty"`
	TargetLevel  float64       `json:"target_level,omitempty"`
	SizeFraction float64       `json:"size_fraction"`
	Reason       string        `json:"reason,omitempty"`
	Elapsed      time.Duration `json:"elapsed"` // session-relative emission time
	CreatedAt    time.Time     `json:"created_at"`
}

// IntentResult reports the outcome of dispatching an intent to the execution
// collaborator. Failures are surfaced to the caller as results, never as
// engine crashes; the engine stays resumable from its last consistent state.
type IntentResult struct {
	IntentID string
	Accepted bool
	Error    string
}
