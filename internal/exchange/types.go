package exchange

// SignedOrder is the wire form posted to /orders/new. Big integers travel as
// decimal strings, matching what the venue signs against.
type SignedOrder struct {
	MarketHash               string `json:"marketHash"`
	Maker                    string `json:"maker"`
	BaseToken                string `json:"baseToken"`
	TotalBetSize             string `json:"totalBetSize"`
	PercentageOdds           string `json:"percentageOdds"`
	APIExpiry                int64  `json:"apiExpiry"`
	Expiry                   int64  `json:"expiry"`
	Executor                 string `json:"executor"`
	IsMakerBettingOutcomeOne bool   `json:"isMakerBettingOutcomeOne"`
	Salt                     string `json:"salt"`
	Signature                string `json:"signature"`
}

// Order is one resting order as reported by GET /orders.
type Order struct {
	OrderHash                string `json:"orderHash"`
	MarketHash               string `json:"marketHash"`
	Maker                    string `json:"maker"`
	BaseToken                string `json:"baseToken"`
	TotalBetSize             string `json:"totalBetSize"`
	FillAmount               string `json:"fillAmount"`
	PercentageOdds           string `json:"percentageOdds"`
	APIExpiry                int64  `json:"apiExpiry"`
	Expiry                   int64  `json:"expiry"`
	Executor                 string `json:"executor"`
	IsMakerBettingOutcomeOne bool   `json:"isMakerBettingOutcomeOne"`
	Status                   string `json:"status,omitempty"`
}

// CancelRequest is the signed batch cancellation payload for
// /orders/cancel/v2.
type CancelRequest struct {
	OrderHashes []string `json:"orderHashes"`
	Signature   string   `json:"signature"`
	Salt        string   `json:"salt"`
	Maker       string   `json:"maker"`
	Timestamp   int64    `json:"timestamp"`
}

// Trade is one historical fill from GET /trades.
type Trade struct {
	MarketHash     string `json:"marketHash"`
	Bettor         string `json:"bettor"`
	Stake          string `json:"stake"`
	Odds           string `json:"odds"`
	SettleValue    string `json:"settleValue,omitempty"`
	BettingOutcome bool   `json:"bettingOutcomeOne"`
	Maker          bool   `json:"maker"`
	BetTimeValue   int64  `json:"betTime"`
}
