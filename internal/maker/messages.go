// messages.go - the control surface: inbound messages from the operator
// process and outbound status messages back to it.
package maker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action identifies a control message.
type Action string

const (
	ActionStart           Action = "start"
	ActionStop            Action = "stop"
	ActionStopAll         Action = "stopAll"
	ActionUpdate          Action = "update"
	ActionForceRefreshAll Action = "forceRefreshAll"
)

// ControlMessage drives the monitor from the operator-facing process.
type ControlMessage struct {
	Action     Action          `json:"action"`
	MarketHash string          `json:"marketHash,omitempty"`
	Config     *PositionConfig `json:"config,omitempty"`
}

// PositionConfig carries position parameters. All fields are optional so the
// same shape serves both start (with defaults applied) and partial update.
type PositionConfig struct {
	Outcome      *int             `json:"outcome,omitempty"`
	MaxFill      *decimal.Decimal `json:"maxFill,omitempty"`
	Increment    *decimal.Decimal `json:"increment,omitempty"`
	Edge         *decimal.Decimal `json:"edge,omitempty"`
	MaxVig       *decimal.Decimal `json:"maxVig,omitempty"`
	MinOrderSize *decimal.Decimal `json:"minOrderSize,omitempty"`
	StartTime    *int64           `json:"startTime,omitempty"`
}

// Status message actions.
const (
	StatusUpdateFill = "updateFill"
	StatusMarkFilled = "markFilled"
)

// StatusMessage reports fill progress to the operator-facing process.
type StatusMessage struct {
	Action      string          `json:"action"`
	MarketHash  string          `json:"marketHash"`
	CurrentFill decimal.Decimal `json:"currentFill"`
}

// normalizeStartTime converts a start time to unix milliseconds. Callers may
// supply seconds or milliseconds; anything below the millisecond range is
// treated as seconds. Absent means now.
func normalizeStartTime(t *int64) int64 {
	if t == nil {
		return time.Now().UnixMilli()
	}
	v := *t
	if v < 1_000_000_000_000 {
		return v * 1000
	}
	return v
}
