package model

import "time"

// AlertStatus is the lifecycle state of an alert. Transitions are
// open → partial → closed; closed is terminal and never reopened.
type AlertStatus string

const (
	AlertOpen    AlertStatus = "open"
	AlertPartial AlertStatus = "partial"
	AlertClosed  AlertStatus = "closed"
)

// Alert result codes. Positive codes record the highest take-profit level
// reached; negative codes record a stop-loss hit and encode how many TPs
// were banked before the loss, so win-rate reporting keeps the partial-win
// information.
const (
	ResultTP1        = 1
	ResultTP2        = 2
	ResultTP3        = 3
	ResultSL         = -1  // stopped out, no TP reached
	ResultSLAfterTP2 = -2  // stopped out after TP2 was recorded
	ResultSLAfterTP1 = -11 // stopped out after TP1 was recorded
)

// Alert is one trading signal instance with computed trade levels.
// HighestPrice/LowestPrice are running extrema observed since emission;
// both are zero until the first evaluation tick sees a price.
type Alert struct {
	ID            int64       `json:"id"`
	Symbol        string      `json:"symbol"`
	Trend         Trend       `json:"trend"`
	PreviousTrend Trend       `json:"previous_trend,omitempty"`
	Entry         float64     `json:"entry"`
	StopLoss      float64     `json:"stop_loss"`
	TP1           float64     `json:"tp1"`
	TP2           float64     `json:"tp2"`
	TP3           float64     `json:"tp3"`
	HighestPrice  float64     `json:"highest_price,omitempty"`
	LowestPrice   float64     `json:"lowest_price,omitempty"`
	Result        int         `json:"result,omitempty"` // 0 = none yet
	Status        AlertStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Active reports whether the alert still needs re-evaluation.
func (a *Alert) Active() bool {
	return a.Status == AlertOpen || a.Status == AlertPartial
}
